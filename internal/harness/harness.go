package harness

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/tracecheck/internal/session"
	"github.com/roach88/tracecheck/internal/sidechannel"
	"github.com/roach88/tracecheck/internal/subject"
	"github.com/roach88/tracecheck/internal/tap"
	"github.com/roach88/tracecheck/internal/tracescan"
)

// PipeName is the side-channel file the subject creates in the scratch
// directory.
const PipeName = "daemon.pipe"

// DefaultPipeTimeout bounds the side-channel wait when Options leaves it
// unset.
const DefaultPipeTimeout = 5 * time.Second

// SubjectRunner launches the subject. *subject.Runner implements it.
type SubjectRunner interface {
	Run(ctx context.Context, path string, args []string, timeout time.Duration) (subject.Outcome, error)
}

// TraceReader reads a trace and scans it. *tracescan.Reader implements it.
type TraceReader interface {
	Read(ctx context.Context, tracePath string, sc *tracescan.Scanner) (tracescan.Result, error)
}

// Options wires a Harness to its collaborators.
type Options struct {
	Tracer session.Tracer
	Runner SubjectRunner
	Reader TraceReader

	// Out receives the report. Defaults to os.Stdout.
	Out io.Writer
	// Logger receives progress records. Defaults to discarding them.
	Logger *slog.Logger

	Subject      string
	Timeout      time.Duration
	PipeTimeout  time.Duration
	EventPattern string
	// ByteOrder decodes side-channel pids. Defaults to the host order.
	ByteOrder binary.ByteOrder
}

// Harness runs the daemon trace-continuity pipeline once.
type Harness struct {
	opts   Options
	logger *slog.Logger
	report *tap.Reporter

	// per-run state, filled in by the stages
	desc     session.Descriptor
	created  bool
	started  bool
	stopped  bool
	cleaned  bool
	outcome  subject.Outcome
	pids     sidechannel.Record
	trace    tracescan.Result
	pipePath string
}

// New creates a Harness. Tracer, Runner and Reader are required.
func New(opts Options) *Harness {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.NativeEndian
	}
	if opts.EventPattern == "" {
		opts.EventPattern = "*"
	}
	if opts.PipeTimeout <= 0 {
		opts.PipeTimeout = DefaultPipeTimeout
	}
	return &Harness{
		opts:   opts,
		logger: opts.Logger,
		report: tap.New(opts.Out),
	}
}

// Run executes the pipeline. The returned Result is never nil. The error
// is a *tap.BailError when the run bailed out, and nil when all checks
// were reported, whatever their outcome.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	res := NewResult()
	res.Started = time.Now()
	defer func() { res.Finished = time.Now() }()
	defer h.cleanup()

	h.report.Plan(NumChecks)
	err := h.pipeline().Run(ctx, h.report, res, h.cleanup, h.logger)
	res.SessionID = h.desc.ID
	if err != nil {
		return res, err
	}
	if werr := h.report.Err(); werr != nil {
		return res, werr
	}
	return res, nil
}

func (h *Harness) pipeline() Pipeline {
	return Pipeline{
		{"precondition", h.checkTracer},
		{"session", h.openSession},
		{"subject", h.runSubject},
		{"subject-gate", h.subjectGate},
		{"stop", h.stopSession},
		{"sidechannel", h.readSidechannel},
		{"trace", h.readTrace},
		{"trace-gate", h.traceGate},
		{"before-found", h.eventFound(tracescan.BeforeDaemon, DescBeforeFound)},
		{"parent-pid", h.pidMatches(tracescan.BeforeDaemon, DescParentPID, func() int64 { return h.pids.ParentPID })},
		{"after-found", h.eventFound(tracescan.AfterDaemon, DescAfterFound)},
		{"daemon-pid", h.pidMatches(tracescan.AfterDaemon, DescDaemonPID, func() int64 { return h.pids.ChildPID })},
	}
}

func (h *Harness) checkTracer(ctx context.Context) StageResult {
	alive, err := h.opts.Tracer.Alive(ctx)
	if err != nil {
		return Fatal{Reason: fmt.Sprintf("could not look for a session daemon: %v", err)}
	}
	if !alive {
		return Fatal{Reason: "No session daemon running. Make sure the tracing service is installed and started."}
	}
	return Continue{}
}

func (h *Harness) openSession(ctx context.Context) StageResult {
	d, err := h.opts.Tracer.Create(ctx)
	if err != nil {
		return Fatal{Reason: fmt.Sprintf("could not create tracing session: %v", err)}
	}
	h.desc, h.created = d, true
	h.pipePath = filepath.Join(d.ScratchDir, PipeName)

	if err := h.opts.Tracer.EnableEvent(ctx, d, h.opts.EventPattern); err != nil {
		return Fatal{Reason: fmt.Sprintf("could not enable events %q: %v", h.opts.EventPattern, err)}
	}
	if err := h.opts.Tracer.Start(ctx, d); err != nil {
		return Fatal{Reason: fmt.Sprintf("could not start tracing session: %v", err)}
	}
	h.started = true
	h.logger.Info("session started", "session", d.ID, "pattern", h.opts.EventPattern)
	return Continue{}
}

func (h *Harness) runSubject(ctx context.Context) StageResult {
	h.logger.Info("starting subject", "path", h.opts.Subject, "pipe", h.pipePath)
	out, err := h.opts.Runner.Run(ctx, h.opts.Subject, []string{h.pipePath}, h.opts.Timeout)
	if err != nil {
		return Fatal{Reason: fmt.Sprintf("Failed to run subject: %v", err)}
	}
	if out.TimedOut {
		return Fatal{Reason: fmt.Sprintf("Failed to run subject (time out after %s)", h.opts.Timeout)}
	}
	h.outcome = out
	return Recorded{Passed: out.Code == 0, Description: DescSubjectExited}
}

func (h *Harness) subjectGate(context.Context) StageResult {
	if h.outcome.Code != 0 {
		return Fatal{Reason: fmt.Sprintf("Could not trigger tracepoints successfully (subject %s). Abandoning test.", h.outcome)}
	}
	return Continue{}
}

func (h *Harness) stopSession(ctx context.Context) StageResult {
	if err := h.opts.Tracer.Stop(ctx, h.desc); err != nil {
		return Fatal{Reason: fmt.Sprintf("could not stop tracing session: %v", err)}
	}
	h.stopped = true
	return Continue{}
}

func (h *Harness) readSidechannel(ctx context.Context) StageResult {
	deadline := time.Now().Add(h.opts.PipeTimeout)
	openCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	h.logger.Debug("opening pid pipe", "path", h.pipePath)
	f, err := sidechannel.Open(openCtx, h.pipePath)
	if err != nil {
		return Fatal{Reason: fmt.Sprintf("Unable to open pid pipe: %v", err)}
	}
	defer f.Close()

	// The same deadline covers a writer that opens the pipe and stalls.
	// Regular files cannot take one and never block.
	if err := f.SetReadDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		h.logger.Debug("pid pipe read deadline not set", "err", err)
	}

	rec, err := sidechannel.Read(f, h.opts.ByteOrder)
	if err != nil {
		return Fatal{Reason: fmt.Sprintf("Unexpected output received from subject: %v", err)}
	}
	if rec.ParentPID <= 0 || rec.ChildPID <= 0 {
		return Fatal{Reason: fmt.Sprintf("Unexpected output received from subject: parent_pid=%d child_pid=%d", rec.ParentPID, rec.ChildPID)}
	}

	h.pids = rec
	h.logger.Info("pids received", "width", rec.Width, "parent_pid", rec.ParentPID, "child_pid", rec.ChildPID)
	return Continue{}
}

func (h *Harness) readTrace(ctx context.Context) StageResult {
	res, err := h.opts.Reader.Read(ctx, h.desc.TracePath, tracescan.NewScanner())
	var dup *tracescan.DuplicateEventError
	switch {
	case errors.Is(err, tracescan.ErrToolNotFound):
		return Fatal{Reason: fmt.Sprintf("%v. Please make sure it is installed.", err)}
	case errors.As(err, &dup):
		return Fatal{Reason: fmt.Sprintf("Multiple instances of the %s event found. Please make sure only one instance of this test is running.", dup.Name)}
	case err != nil:
		return Fatal{Reason: fmt.Sprintf("could not read trace: %v", err)}
	}

	h.trace = res
	return Recorded{Passed: res.Readable(), Description: DescTraceReadable}
}

func (h *Harness) traceGate(context.Context) StageResult {
	if !h.trace.Readable() {
		return Fatal{Reason: fmt.Sprintf("Unreadable trace (reader exited with code %d); can't proceed with analysis.", h.trace.ExitCode)}
	}
	return Continue{}
}

func (h *Harness) eventFound(name, desc string) func(context.Context) StageResult {
	return func(context.Context) StageResult {
		return Recorded{Passed: h.trace.Observations.Found(name), Description: desc}
	}
}

func (h *Harness) pidMatches(name, desc string, want func() int64) func(context.Context) StageResult {
	return func(context.Context) StageResult {
		passed := h.trace.Observations.PIDMatches(name, want())
		if !passed {
			ev := h.trace.Observations[name]
			h.logger.Warn("pid mismatch", "event", name, "want", want(), "got", ev.PID, "has_pid", ev.HasPID)
		}
		return Recorded{Passed: passed, Description: desc}
	}
}

// cleanup tears the session down once. Failures are logged and do not
// change the run's outcome.
func (h *Harness) cleanup() {
	if h.cleaned {
		return
	}
	h.cleaned = true

	// Teardown must happen even when ctx was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h.started && !h.stopped {
		if err := h.opts.Tracer.Stop(ctx, h.desc); err != nil {
			h.logger.Warn("stop session during cleanup", "session", h.desc.ID, "err", err)
		}
		h.stopped = true
	}
	if h.created {
		if err := h.opts.Tracer.Destroy(ctx, h.desc); err != nil {
			h.logger.Warn("destroy session", "session", h.desc.ID, "err", err)
		}
		if h.desc.ScratchDir != "" {
			if err := os.RemoveAll(h.desc.ScratchDir); err != nil {
				h.logger.Warn("remove scratch directory", "dir", h.desc.ScratchDir, "err", err)
			}
		}
	}
}
