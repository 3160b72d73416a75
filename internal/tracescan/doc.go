// Package tracescan classifies the text output of a trace reading tool
// into tracked events.
//
// Matching is literal: a line belongs to an event when it contains the
// event name anywhere, and its pid is the run of decimal digits directly
// after the first "pid = " marker that is followed by at least one digit.
// No regular expression engine is involved so the contract does not depend
// on any pattern library's semantics.
//
// Each tracked event may appear at most once per trace. A second
// occurrence means another instance of the subject was traced at the same
// time, so Scan stops and reports a DuplicateEventError instead of
// classifying further.
package tracescan
