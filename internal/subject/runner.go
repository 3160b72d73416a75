// Package subject launches the program under test and waits for it with a
// hard deadline.
package subject

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Outcome is how the subject's launching process ended.
type Outcome struct {
	// Code is the exit code, or -1 if the process died from a signal.
	Code     int
	TimedOut bool
	Elapsed  time.Duration
}

// Succeeded reports a normal exit with status 0.
func (o Outcome) Succeeded() bool {
	return !o.TimedOut && o.Code == 0
}

func (o Outcome) String() string {
	if o.TimedOut {
		return fmt.Sprintf("timed out after %s", o.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("exited with code %d", o.Code)
}

// Runner starts subject processes.
type Runner struct {
	// Stdout and Stderr are handed to the child as files. A detaching
	// subject keeps them open after its parent exits, so they must not be
	// pipes the runner would wait on.
	Stdout *os.File
	Stderr *os.File

	logger *slog.Logger
}

// NewRunner creates a Runner that forwards subject output to stderr.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{Stdout: os.Stderr, Stderr: os.Stderr, logger: logger}
}

// Run launches path with args and blocks until it exits or timeout
// elapses. On timeout the subject's process group is killed and the
// outcome has TimedOut set. The returned error is only for failures to
// launch or to observe the process; a non-zero exit is not an error.
func (r *Runner) Run(ctx context.Context, path string, args []string, timeout time.Duration) (Outcome, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = nil
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.SysProcAttr = sysProcAttr()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start subject %s: %w", path, err)
	}
	r.logger.Info("subject started", "path", path, "pid", cmd.Process.Pid, "timeout", timeout)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		r.kill(cmd)
		<-done
		out := Outcome{Code: -1, TimedOut: true, Elapsed: time.Since(start)}
		r.logger.Warn("subject timed out", "pid", cmd.Process.Pid, "elapsed", out.Elapsed)
		return out, nil
	case <-ctx.Done():
		r.kill(cmd)
		<-done
		return Outcome{}, fmt.Errorf("subject interrupted: %w", ctx.Err())
	}

	out := Outcome{Elapsed: time.Since(start)}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Outcome{}, fmt.Errorf("wait for subject: %w", waitErr)
		}
		out.Code = exitErr.ExitCode()
	}

	r.logger.Info("subject exited", "pid", cmd.Process.Pid, "code", out.Code, "elapsed", out.Elapsed)
	return out, nil
}

func (r *Runner) kill(cmd *exec.Cmd) {
	if err := killGroup(cmd.Process.Pid); err != nil {
		r.logger.Debug("kill process group failed, killing leader", "pid", cmd.Process.Pid, "err", err)
		_ = cmd.Process.Kill()
	}
}
