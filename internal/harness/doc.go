// Package harness verifies that a tracing service attributes events to the
// right process across a daemonize boundary.
//
// # Pipeline
//
// Run executes a fixed sequence of stages and reports six numbered checks:
//
//  1. the subject called daemon() and exited normally
//  2. the trace could be read
//  3. before_daemon is in the trace
//  4. before_daemon carries the parent pid
//  5. after_daemon is in the trace
//  6. after_daemon carries the daemon (child) pid
//
// Between them sit gates that bail out of the run: no session daemon, a
// session command failing, the subject hanging or failing, an unreadable
// side-channel, a missing or failing trace reader, or a tracked event
// appearing twice. Checks 3 to 6 are what the harness exists to measure, so
// they never bail; a failed one is reported and the run continues.
//
// # Stage Results
//
// Every stage returns a StageResult, one of:
//
//	Continue{}                 nothing to report
//	Recorded{Passed, Desc}     report one check and go on
//	Fatal{Reason}              bail out, skipping the remaining stages
//
// Pipeline.Run is the only place that turns these into report lines, so
// the bail/continue split is visible in the stage list rather than spread
// through nested conditionals.
//
// # Cleanup
//
// The session is stopped (if it was started and not yet stopped), then
// destroyed, and its scratch directory removed. This happens exactly once
// on every path: before the bail line on a fatal stage, and on return
// otherwise.
package harness
