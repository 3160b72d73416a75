package tracescan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// ErrToolNotFound is returned when the trace reading tool cannot be found.
var ErrToolNotFound = errors.New("trace reader not found")

// Result is the outcome of reading one trace.
type Result struct {
	Observations Observations
	ExitCode     int
}

// Readable reports whether the tool read the whole trace.
func (r Result) Readable() bool {
	return r.ExitCode == 0
}

// Reader runs an external trace reading tool and scans its stdout.
type Reader struct {
	// Tool is the executable name or path, e.g. "babeltrace".
	Tool string
	// Args are passed before the trace path.
	Args []string
	// Stderr receives the tool's diagnostics. Defaults to os.Stderr.
	Stderr io.Writer

	logger *slog.Logger
}

// NewReader creates a Reader for tool.
func NewReader(tool string, args []string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{Tool: tool, Args: args, Stderr: os.Stderr, logger: logger}
}

// Read runs the tool on tracePath and feeds its output to sc. The tool's
// exit status is only collected after its stdout closes.
//
// A missing tool yields ErrToolNotFound. A DuplicateEventError from the
// scanner is returned as is, after the tool has been killed and reaped.
func (r *Reader) Read(ctx context.Context, tracePath string, sc *Scanner) (Result, error) {
	path, err := exec.LookPath(r.Tool)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrToolNotFound, r.Tool)
	}

	args := append(append([]string(nil), r.Args...), tracePath)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = r.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("trace reader stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %q", ErrToolNotFound, r.Tool)
		}
		return Result{}, fmt.Errorf("start trace reader: %w", err)
	}
	r.logger.Debug("trace reader started", "tool", path, "pid", cmd.Process.Pid, "trace", tracePath)

	obs, scanErr := sc.Scan(stdout)
	if scanErr != nil {
		// The tool may still be writing; nobody is reading anymore.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return Result{Observations: obs}, scanErr
	}

	res := Result{Observations: obs}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("wait for trace reader: %w", err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug("trace reader exited", "exit_code", res.ExitCode, "events", len(obs))
	return res, nil
}
