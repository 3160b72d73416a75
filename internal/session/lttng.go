package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LTTng implements Tracer with the lttng command line client.
type LTTng struct {
	// Bin is the lttng client executable.
	Bin string
	// TempDir is the parent of scratch directories. Empty means os.TempDir.
	TempDir string
	// Probe decides whether the session daemon is running.
	Probe Probe

	logger *slog.Logger
}

// NewLTTng creates an LTTng tracer using bin and a process probe for the
// session daemon named sessiond.
func NewLTTng(bin, sessiond string, logger *slog.Logger) *LTTng {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LTTng{
		Bin:    bin,
		Probe:  ProcessProbe{Name: sessiond},
		logger: logger,
	}
}

// Alive reports whether the session daemon process is running.
func (l *LTTng) Alive(ctx context.Context) (bool, error) {
	return l.Probe.Running(ctx)
}

// Create makes a scratch directory and a session writing its trace there.
// The scratch directory is removed again if the session cannot be created.
func (l *LTTng) Create(ctx context.Context) (Descriptor, error) {
	id, err := NewID()
	if err != nil {
		return Descriptor{}, err
	}

	scratch, err := os.MkdirTemp(l.TempDir, "tracecheck-")
	if err != nil {
		return Descriptor{}, fmt.Errorf("create scratch directory: %w", err)
	}

	d := Descriptor{
		ID:         id,
		TracePath:  filepath.Join(scratch, "trace"),
		ScratchDir: scratch,
	}
	if err := l.run(ctx, "create", d.ID, "--output="+d.TracePath); err != nil {
		os.RemoveAll(scratch)
		return Descriptor{}, err
	}

	l.logger.Info("session created", "session", d.ID, "trace", d.TracePath)
	return d, nil
}

// EnableEvent enables userspace events matching pattern in d.
func (l *LTTng) EnableEvent(ctx context.Context, d Descriptor, pattern string) error {
	return l.run(ctx, "enable-event", "--userspace", "--session="+d.ID, pattern)
}

// Start begins recording in d.
func (l *LTTng) Start(ctx context.Context, d Descriptor) error {
	return l.run(ctx, "start", d.ID)
}

// Stop ends recording in d and flushes its trace.
func (l *LTTng) Stop(ctx context.Context, d Descriptor) error {
	return l.run(ctx, "stop", d.ID)
}

// Destroy removes d from the service. Its trace files are left alone.
func (l *LTTng) Destroy(ctx context.Context, d Descriptor) error {
	return l.run(ctx, "destroy", d.ID)
}

// run executes one lttng client command. The client's combined output is
// included in the error so a bail message says why the service refused.
func (l *LTTng) run(ctx context.Context, args ...string) error {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, l.Bin, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	l.logger.Debug("lttng", "args", args)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg == "" {
			return fmt.Errorf("lttng %s: %w", args[0], err)
		}
		return fmt.Errorf("lttng %s: %w: %s", args[0], err, msg)
	}
	return nil
}
