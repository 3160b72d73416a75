package tracescan

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Event names emitted by the daemon subject.
const (
	BeforeDaemon = "before_daemon"
	AfterDaemon  = "after_daemon"
)

// PIDMarker precedes the pid attribute on a trace line.
const PIDMarker = "pid = "

// maxLineSize bounds a single trace line. Events with large payloads can
// exceed bufio's default 64 KiB token size.
const maxLineSize = 1 << 20

// Event is one tracked event as seen in the trace.
type Event struct {
	Name   string
	PID    int64
	HasPID bool
	Line   string
}

// Observations maps a tracked event name to its single occurrence.
type Observations map[string]Event

// Found reports whether name was seen.
func (o Observations) Found(name string) bool {
	_, ok := o[name]
	return ok
}

// PIDMatches reports whether name was seen with a pid equal to want. An
// event without a pid attribute never matches.
func (o Observations) PIDMatches(name string, want int64) bool {
	ev, ok := o[name]
	return ok && ev.HasPID && ev.PID == want
}

// DuplicateEventError is returned when a tracked event occurs twice.
type DuplicateEventError struct {
	Name  string
	First string
	Again string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("multiple instances of the %s event found", e.Name)
}

// Scanner classifies trace lines into tracked events.
type Scanner struct {
	names []string
}

// NewScanner tracks the given event names. With no names it tracks
// BeforeDaemon and AfterDaemon.
func NewScanner(names ...string) *Scanner {
	if len(names) == 0 {
		names = []string{BeforeDaemon, AfterDaemon}
	}
	return &Scanner{names: names}
}

// Names returns the tracked event names in order.
func (s *Scanner) Names() []string {
	return append([]string(nil), s.names...)
}

// Scan consumes r line by line until it is exhausted. It returns the
// observations made so far together with any error; on a duplicate the
// scan stops at the offending line.
func (s *Scanner) Scan(r io.Reader) (Observations, error) {
	obs := make(Observations, len(s.names))
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		if err := s.classify(obs, sc.Text()); err != nil {
			return obs, err
		}
	}
	if err := sc.Err(); err != nil {
		return obs, fmt.Errorf("read trace output: %w", err)
	}
	return obs, nil
}

func (s *Scanner) classify(obs Observations, line string) error {
	for _, name := range s.names {
		if !strings.Contains(line, name) {
			continue
		}
		if prev, seen := obs[name]; seen {
			return &DuplicateEventError{Name: name, First: prev.Line, Again: line}
		}

		ev := Event{Name: name, Line: line}
		pid, ok, err := ExtractPID(line)
		if err != nil {
			return fmt.Errorf("%s event: %w", name, err)
		}
		ev.PID, ev.HasPID = pid, ok
		obs[name] = ev
	}
	return nil
}

// ExtractPID returns the decimal integer right after the first PIDMarker
// on line that is followed by a digit. ok is false when no such marker
// exists. err is set only when the digits overflow int64.
func ExtractPID(line string) (pid int64, ok bool, err error) {
	rest := line
	for {
		i := strings.Index(rest, PIDMarker)
		if i < 0 {
			return 0, false, nil
		}
		rest = rest[i+len(PIDMarker):]

		n := 0
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		if n == 0 {
			continue
		}

		pid, err = strconv.ParseInt(rest[:n], 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("pid attribute %q: %w", rest[:n], err)
		}
		return pid, true, nil
	}
}
