// Package tap writes harness results in the Test Anything Protocol.
//
// A run prints one plan line, then one numbered line per check:
//
//	1..6
//	ok 1 - Successful call to daemon() and normal exit
//	not ok 2 - Resulting trace is readable
//
// or stops early with a single "Bail out!" line. Checks that were planned
// but never reached are not printed, so after a bail the plan count and
// the number of result lines differ.
package tap

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// BailError is returned by Bail. It carries the diagnostic that was
// printed.
type BailError struct {
	Reason string
}

func (e *BailError) Error() string {
	return "bail out: " + e.Reason
}

// Reporter numbers and prints check results. The ordinal starts at 1 and
// only moves forward.
type Reporter struct {
	w        io.Writer
	next     int
	planned  int
	reported int
	bailed   bool
	err      error
}

// New creates a Reporter writing to w.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w, next: 1}
}

// Plan announces how many checks will be attempted. It must be called
// once, before any Check.
func (r *Reporter) Plan(total int) {
	r.planned = total
	r.printf("1..%d\n", total)
}

// Check prints one result and returns the ordinal of the next check.
// Nothing is printed after a bail.
func (r *Reporter) Check(passed bool, description string) int {
	if r.bailed {
		return r.next
	}
	status := "ok"
	if !passed {
		status = "not ok"
	}
	r.printf("%s %d - %s\n", status, r.next, escapeDescription(clean(description)))
	r.next++
	r.reported++
	return r.next
}

// Bail runs cleanup, best effort and in order, then prints the bail line.
// The caller is expected to stop and exit non-zero with the returned
// error.
func (r *Reporter) Bail(reason string, cleanup ...func()) *BailError {
	for _, fn := range cleanup {
		fn()
	}
	reason = clean(reason)
	if !r.bailed {
		r.bailed = true
		r.printf("Bail out! %s\n", reason)
	}
	return &BailError{Reason: reason}
}

// Next returns the ordinal the next Check will use.
func (r *Reporter) Next() int { return r.next }

// Planned returns the announced check count.
func (r *Reporter) Planned() int { return r.planned }

// Reported returns how many checks were printed.
func (r *Reporter) Reported() int { return r.reported }

// Bailed reports whether Bail was called.
func (r *Reporter) Bailed() bool { return r.bailed }

// Err returns the first write error, if any.
func (r *Reporter) Err() error { return r.err }

func (r *Reporter) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	if _, err := fmt.Fprintf(r.w, format, args...); err != nil {
		r.err = fmt.Errorf("write report: %w", err)
	}
}

// clean keeps every report line on one line and in NFC so the output is
// byte-stable for consumers that grep it.
func clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return strings.TrimSpace(s)
}

// escapeDescription stops a '#' in a description from being read as a
// TAP directive.
func escapeDescription(s string) string {
	return strings.ReplaceAll(s, "#", `\#`)
}
