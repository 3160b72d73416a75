package harness

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecheck/internal/tap"
	"github.com/roach88/tracecheck/internal/testutil"
)

func newScenarioHarness(env *testutil.Env, out *bytes.Buffer) *Harness {
	return New(Options{
		Tracer:      env.Tracer,
		Runner:      env.Runner,
		Reader:      env.Reader,
		Out:         out,
		Subject:     "./daemon",
		Timeout:     5 * time.Second,
		PipeTimeout: time.Second,
	})
}

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		s, err := testutil.LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(s.Name, func(t *testing.T) {
			env := testutil.NewEnv(s, t.TempDir())
			var out bytes.Buffer

			res, err := newScenarioHarness(env, &out).Run(context.Background())
			require.NotNil(t, res)

			if s.Expect.Bailed {
				var bail *tap.BailError
				require.True(t, errors.As(err, &bail), "expected bail, got %v", err)
				assert.True(t, res.Bailed)
				assert.Equal(t, bail.Reason, res.BailReason)
				assert.False(t, res.Complete())
			} else {
				require.NoError(t, err)
				assert.True(t, res.Complete())
			}

			passed := []bool{}
			for i, c := range res.Checks {
				assert.Equal(t, i+1, c.Index)
				passed = append(passed, c.Passed)
			}
			if len(s.Expect.Checks) == 0 {
				assert.Empty(t, passed)
			} else {
				assert.Equal(t, s.Expect.Checks, passed)
			}
			assert.Equal(t, NumChecks, res.Planned)

			if d := env.Tracer.Created; d.ScratchDir != "" {
				assert.NoDirExists(t, d.ScratchDir)
			}

			testutil.AssertGolden(t, s.Name, out.Bytes())
		})
	}
}

func loadEnv(t *testing.T, name string) (*testutil.Scenario, *testutil.Env) {
	t.Helper()
	s, err := testutil.LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s, testutil.NewEnv(s, t.TempDir())
}

func TestRun_HappyPathCallSequence(t *testing.T) {
	_, env := loadEnv(t, "happy_path")
	var out bytes.Buffer

	res, err := newScenarioHarness(env, &out).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Pass())
	assert.Empty(t, res.Failed())
	assert.Equal(t, testutil.FakeSessionID, res.SessionID)
	assert.False(t, res.Finished.Before(res.Started))

	assert.Equal(t, []string{"alive", "create", "enable *", "start", "stop", "destroy"}, env.Tracer.Calls)
	assert.Equal(t, []string{"./daemon", filepath.Join(env.Tracer.Created.ScratchDir, PipeName)}, env.Runner.Args)
	assert.Equal(t, env.Tracer.Created.TracePath, env.Reader.TracePath)
}

func TestRun_PidMismatchStillCompletes(t *testing.T) {
	_, env := loadEnv(t, "pid_mismatch")
	var out bytes.Buffer

	res, err := newScenarioHarness(env, &out).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.False(t, res.Pass())
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, CheckResult{Index: 6, Passed: false, Description: DescDaemonPID}, res.Failed()[0])
}

func TestRun_TimeoutStopsStartedSession(t *testing.T) {
	_, env := loadEnv(t, "subject_timeout")
	var out bytes.Buffer

	_, err := newScenarioHarness(env, &out).Run(context.Background())
	require.Error(t, err)

	// Cleanup stops the still running session before destroying it.
	assert.Equal(t, []string{"alive", "create", "enable *", "start", "stop", "destroy"}, env.Tracer.Calls)
	assert.Empty(t, env.Reader.TracePath, "trace reader must not run after a timeout")
	assert.NotContains(t, out.String(), "ok 1")
}

func TestRun_SessiondDownCreatesNothing(t *testing.T) {
	_, env := loadEnv(t, "sessiond_down")
	var out bytes.Buffer

	_, err := newScenarioHarness(env, &out).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"alive"}, env.Tracer.Calls)
}

func TestRun_DuplicateBailsBeforeAnyComparison(t *testing.T) {
	_, env := loadEnv(t, "duplicate_event")
	var out bytes.Buffer

	res, err := newScenarioHarness(env, &out).Run(context.Background())
	require.Error(t, err)
	assert.Len(t, res.Checks, 1)
	assert.NotContains(t, out.String(), "Resulting trace is readable")
	assert.Contains(t, res.BailReason, "before_daemon")
}

func TestRun_CleanupFailuresDoNotChangeOutcome(t *testing.T) {
	_, env := loadEnv(t, "happy_path")
	env.Tracer.FailOn = "destroy"
	var out bytes.Buffer

	res, err := newScenarioHarness(env, &out).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Pass())
	assert.NoDirExists(t, env.Tracer.Created.ScratchDir)
}

func TestRun_CancelledContextBails(t *testing.T) {
	_, env := loadEnv(t, "happy_path")
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newScenarioHarness(env, &out).Run(ctx)
	require.Error(t, err)
	assert.True(t, res.Bailed)
	assert.Contains(t, res.BailReason, "interrupted before precondition")
	assert.Empty(t, env.Tracer.Calls)
}

func TestRun_RejectsNonPositivePids(t *testing.T) {
	_, env := loadEnv(t, "happy_path")
	env.Runner.Sidechannel.ParentPID = -1
	var out bytes.Buffer

	res, err := newScenarioHarness(env, &out).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, res.BailReason, "parent_pid=-1")
}

func TestNew_Defaults(t *testing.T) {
	h := New(Options{Tracer: &testutil.FakeTracer{}})
	assert.Equal(t, DefaultPipeTimeout, h.opts.PipeTimeout)
	assert.Equal(t, "*", h.opts.EventPattern)
	assert.NotNil(t, h.opts.ByteOrder)
}
