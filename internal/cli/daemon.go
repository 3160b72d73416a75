package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracecheck/internal/config"
	"github.com/roach88/tracecheck/internal/harness"
	"github.com/roach88/tracecheck/internal/session"
	"github.com/roach88/tracecheck/internal/store"
	"github.com/roach88/tracecheck/internal/subject"
	"github.com/roach88/tracecheck/internal/tap"
	"github.com/roach88/tracecheck/internal/tracescan"
)

// DaemonOptions holds flags for the daemon command.
type DaemonOptions struct {
	*RootOptions
	Subject      string
	LTTng        string
	Sessiond     string
	Reader       string
	Timeout      time.Duration
	PipeTimeout  time.Duration
	EventPattern string
	Journal      string

	// Tracer, Runner and TraceReader override the real collaborators
	// (for testing). Nil means build them from the resolved config.
	Tracer      session.Tracer
	Runner      harness.SubjectRunner
	TraceReader harness.TraceReader
}

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	return newDaemonCommand(&DaemonOptions{RootOptions: rootOpts})
}

func newDaemonCommand(opts *DaemonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Check trace continuity across daemonization",
		Long: `Run the daemon subject inside a fresh userspace tracing session and
check that its before_daemon and after_daemon events were recorded with the
pids of the original process and of the daemonized child.

The subject receives one argument, the path of a side channel it must create
and write both pids to. Six checks are planned; the run bails out as soon as
a later check would be meaningless.

Example:
  tracecheck daemon --subject ./daemon
  tracecheck daemon --config tracecheck.yaml --journal runs.db -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVar(&opts.Subject, "subject", defaults.Subject, "path to the daemonizing subject executable")
	cmd.Flags().StringVar(&opts.LTTng, "lttng", defaults.LTTng, "lttng client executable")
	cmd.Flags().StringVar(&opts.Sessiond, "sessiond", defaults.Sessiond, "session daemon process name")
	cmd.Flags().StringVar(&opts.Reader, "reader", defaults.Reader, "trace reading tool")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", defaults.Timeout, "how long the subject may run")
	cmd.Flags().DurationVar(&opts.PipeTimeout, "pipe-timeout", defaults.PipeTimeout, "how long to wait for the side channel to open")
	cmd.Flags().StringVar(&opts.EventPattern, "event-pattern", defaults.EventPattern, "userspace event pattern to enable")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the run in this SQLite journal")

	return cmd
}

func runDaemon(opts *DaemonOptions, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, abandoning run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	h := harness.New(harness.Options{
		Tracer:       opts.tracer(cfg, logger),
		Runner:       opts.runner(logger),
		Reader:       opts.traceReader(cfg, logger),
		Out:          cmd.OutOrStdout(),
		Logger:       logger,
		Subject:      cfg.Subject,
		Timeout:      cfg.Timeout,
		PipeTimeout:  cfg.PipeTimeout,
		EventPattern: cfg.EventPattern,
	})

	logger.Info("daemon checks starting", "subject", cfg.Subject, "timeout", cfg.Timeout)
	res, runErr := h.Run(ctx)
	logger.Info("daemon checks finished",
		"reported", len(res.Checks),
		"planned", res.Planned,
		"failed", len(res.Failed()),
		"bailed", res.Bailed,
	)

	if cfg.Journal != "" {
		// The journal never changes the exit status.
		recordJournal(context.Background(), cfg.Journal, res, logger)
	}

	if runErr != nil {
		var bail *tap.BailError
		if errors.As(runErr, &bail) {
			return WrapExitError(ExitFailure, "run bailed out", runErr)
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

// resolveConfig layers defaults, the optional config file and any flags
// set explicitly on the command line.
func resolveConfig(opts *DaemonOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("subject") {
		cfg.Subject = opts.Subject
	}
	if flags.Changed("lttng") {
		cfg.LTTng = opts.LTTng
	}
	if flags.Changed("sessiond") {
		cfg.Sessiond = opts.Sessiond
	}
	if flags.Changed("reader") {
		cfg.Reader = opts.Reader
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.Timeout
	}
	if flags.Changed("pipe-timeout") {
		cfg.PipeTimeout = opts.PipeTimeout
	}
	if flags.Changed("event-pattern") {
		cfg.EventPattern = opts.EventPattern
	}
	if flags.Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func recordJournal(ctx context.Context, path string, res *harness.Result, logger *slog.Logger) {
	st, err := store.Open(path)
	if err != nil {
		logger.Error("failed to open journal", "path", path, "error", err)
		return
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	id, err := st.RecordRun(ctx, res)
	if err != nil {
		logger.Error("failed to record run", "path", path, "error", err)
		return
	}
	logger.Info("run recorded", "journal", path, "run_id", id)
}

func (o *DaemonOptions) tracer(cfg config.Config, logger *slog.Logger) session.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	return session.NewLTTng(cfg.LTTng, cfg.Sessiond, logger)
}

func (o *DaemonOptions) runner(logger *slog.Logger) harness.SubjectRunner {
	if o.Runner != nil {
		return o.Runner
	}
	return subject.NewRunner(logger)
}

func (o *DaemonOptions) traceReader(cfg config.Config, logger *slog.Logger) harness.TraceReader {
	if o.TraceReader != nil {
		return o.TraceReader
	}
	return tracescan.NewReader(cfg.Reader, cfg.ReaderArgs, logger)
}

