package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/tracecheck/internal/session"
	"github.com/roach88/tracecheck/internal/sidechannel"
	"github.com/roach88/tracecheck/internal/subject"
	"github.com/roach88/tracecheck/internal/tracescan"
)

// FakeSessionID is the id every FakeTracer session gets.
const FakeSessionID = session.NamePrefix + "test"

// FakeTracer is a scripted session.Tracer that records its calls.
type FakeTracer struct {
	Down    bool
	FailOn  string
	BaseDir string

	Calls   []string
	Created session.Descriptor
}

var _ session.Tracer = (*FakeTracer)(nil)

func (f *FakeTracer) Alive(context.Context) (bool, error) {
	f.Calls = append(f.Calls, "alive")
	return !f.Down, nil
}

func (f *FakeTracer) Create(context.Context) (session.Descriptor, error) {
	if err := f.call("create"); err != nil {
		return session.Descriptor{}, err
	}
	scratch, err := os.MkdirTemp(f.BaseDir, "tracecheck-")
	if err != nil {
		return session.Descriptor{}, err
	}
	f.Created = session.Descriptor{
		ID:         FakeSessionID,
		TracePath:  filepath.Join(scratch, "trace"),
		ScratchDir: scratch,
	}
	return f.Created, nil
}

func (f *FakeTracer) EnableEvent(_ context.Context, _ session.Descriptor, pattern string) error {
	return f.call("enable " + pattern)
}

func (f *FakeTracer) Start(context.Context, session.Descriptor) error { return f.call("start") }

func (f *FakeTracer) Stop(context.Context, session.Descriptor) error { return f.call("stop") }

func (f *FakeTracer) Destroy(context.Context, session.Descriptor) error { return f.call("destroy") }

func (f *FakeTracer) call(name string) error {
	f.Calls = append(f.Calls, name)
	op, _, _ := strings.Cut(name, " ")
	if f.FailOn != "" && op == f.FailOn {
		return fmt.Errorf("%s refused", op)
	}
	return nil
}

// FakeRunner plays the subject: on a zero exit it writes the scripted
// side-channel record to the path it was given, as a regular file.
type FakeRunner struct {
	Script      SubjectScript
	Sidechannel SidechannelScript
	Order       binary.ByteOrder

	Args []string
}

func (f *FakeRunner) Run(_ context.Context, path string, args []string, timeout time.Duration) (subject.Outcome, error) {
	f.Args = append([]string{path}, args...)
	if f.Script.LaunchError != "" {
		return subject.Outcome{}, fmt.Errorf("start subject %s: %s", path, f.Script.LaunchError)
	}
	if f.Script.TimedOut {
		return subject.Outcome{Code: -1, TimedOut: true, Elapsed: timeout}, nil
	}
	if f.Script.ExitCode == 0 && len(args) > 0 {
		if err := f.writeSidechannel(args[0]); err != nil {
			return subject.Outcome{}, err
		}
	}
	return subject.Outcome{Code: f.Script.ExitCode}, nil
}

func (f *FakeRunner) writeSidechannel(path string) error {
	order := f.Order
	if order == nil {
		order = binary.NativeEndian
	}
	var buf bytes.Buffer
	err := sidechannel.Write(&buf, order, sidechannel.Record{
		Width:     f.Sidechannel.Width,
		ParentPID: f.Sidechannel.ParentPID,
		ChildPID:  f.Sidechannel.ChildPID,
	})
	if err != nil {
		return fmt.Errorf("fake subject: %w", err)
	}
	data := buf.Bytes()
	if n := f.Sidechannel.Truncate; n > 0 && n < len(data) {
		data = data[:n]
	}
	return os.WriteFile(path, data, 0o600)
}

// FakeReader plays the trace reading tool by scanning scripted lines.
type FakeReader struct {
	Script ReaderScript

	TracePath string
}

func (f *FakeReader) Read(_ context.Context, tracePath string, sc *tracescan.Scanner) (tracescan.Result, error) {
	f.TracePath = tracePath
	if f.Script.Missing {
		return tracescan.Result{}, fmt.Errorf("%w: %q", tracescan.ErrToolNotFound, f.Script.Tool)
	}
	obs, err := sc.Scan(strings.NewReader(strings.Join(f.Script.Lines, "\n")))
	if err != nil {
		return tracescan.Result{Observations: obs}, err
	}
	return tracescan.Result{Observations: obs, ExitCode: f.Script.ExitCode}, nil
}

// Env is the set of fakes built from one scenario.
type Env struct {
	Tracer *FakeTracer
	Runner *FakeRunner
	Reader *FakeReader
}

// NewEnv builds fakes for s. Scratch directories are created under
// baseDir.
func NewEnv(s *Scenario, baseDir string) *Env {
	return &Env{
		Tracer: &FakeTracer{Down: s.SessiondDown, FailOn: s.Session.FailOn, BaseDir: baseDir},
		Runner: &FakeRunner{Script: s.Subject, Sidechannel: s.Sidechannel},
		Reader: &FakeReader{Script: s.Reader},
	}
}
