package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecheck/internal/tap"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stage(name string, r StageResult, ran *[]string) Stage {
	return Stage{Name: name, Run: func(context.Context) StageResult {
		*ran = append(*ran, name)
		return r
	}}
}

func TestPipeline_ContinueAndRecorded(t *testing.T) {
	var out bytes.Buffer
	var ran []string
	rep := tap.New(&out)
	res := NewResult()

	p := Pipeline{
		stage("a", Continue{}, &ran),
		stage("b", Recorded{Passed: true, Description: "first"}, &ran),
		stage("c", Recorded{Passed: false, Description: "second"}, &ran),
	}
	err := p.Run(context.Background(), rep, res, func() { t.Fatal("cleanup must not run") }, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, "ok 1 - first\nnot ok 2 - second\n", out.String())
	assert.Equal(t, []CheckResult{
		{Index: 1, Passed: true, Description: "first"},
		{Index: 2, Passed: false, Description: "second"},
	}, res.Checks)
}

func TestPipeline_FatalStopsAndCleansUpFirst(t *testing.T) {
	var out bytes.Buffer
	var ran []string
	rep := tap.New(&out)
	res := NewResult()

	cleaned := false
	p := Pipeline{
		stage("a", Recorded{Passed: true, Description: "first"}, &ran),
		stage("b", Fatal{Reason: "boom"}, &ran),
		stage("c", Recorded{Passed: true, Description: "never"}, &ran),
	}
	err := p.Run(context.Background(), rep, res, func() {
		cleaned = true
		assert.NotContains(t, out.String(), "Bail out!")
	}, discardLogger())

	var bail *tap.BailError
	require.True(t, errors.As(err, &bail))
	assert.Equal(t, "boom", bail.Reason)
	assert.True(t, cleaned)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, "ok 1 - first\nBail out! boom\n", out.String())
	assert.True(t, res.Bailed)
	assert.Len(t, res.Checks, 1)
}

func TestPipeline_PanicIsFatal(t *testing.T) {
	var out bytes.Buffer
	res := NewResult()
	p := Pipeline{{Name: "explode", Run: func(context.Context) StageResult { panic("index out of range") }}}

	err := p.Run(context.Background(), tap.New(&out), res, func() {}, discardLogger())
	require.Error(t, err)
	assert.Equal(t, "Bail out! stage explode failed unexpectedly: index out of range\n", out.String())
}

func TestPipeline_NilResultIsFatal(t *testing.T) {
	var out bytes.Buffer
	p := Pipeline{{Name: "empty", Run: func(context.Context) StageResult { return nil }}}

	err := p.Run(context.Background(), tap.New(&out), NewResult(), func() {}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, out.String(), "stage empty returned no result")
}

func TestResult_CompleteAndPass(t *testing.T) {
	res := NewResult()
	assert.False(t, res.Complete())

	for i := 1; i <= NumChecks; i++ {
		res.AddCheck(i, true, "x")
	}
	assert.True(t, res.Complete())
	assert.True(t, res.Pass())

	res.Checks[3].Passed = false
	assert.True(t, res.Complete())
	assert.False(t, res.Pass())
	assert.Len(t, res.Failed(), 1)

	res.Bailed = true
	assert.False(t, res.Complete())
}
