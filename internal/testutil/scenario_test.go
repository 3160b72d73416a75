package testutil

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecheck/internal/sidechannel"
	"github.com/roach88/tracecheck/internal/tracescan"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: happy
description: "everything works"
subject:
  exit_code: 0
sidechannel:
  width: 4
  parent_pid: 10
  child_pid: 11
reader:
  exit_code: 0
  lines:
    - "before_daemon pid = 10"
expect:
  bailed: false
  checks: [true, true]
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "happy", s.Name)
	assert.Equal(t, "babeltrace", s.Reader.Tool)
	assert.Equal(t, uint8(4), s.Sidechannel.Width)
	assert.Equal(t, []bool{true, true}, s.Expect.Checks)
}

func TestLoadScenario_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown field", "name: x\ndescription: y\nsubjekt: {}\n", "field subjekt not found"},
		{"missing name", "description: y\n", "name is required"},
		{"missing description", "name: x\n", "description is required"},
		{"bad fail_on", "name: x\ndescription: y\nsession:\n  fail_on: explode\n", "unknown call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFakeRunner_WritesSidechannel(t *testing.T) {
	dir := t.TempDir()
	pipe := filepath.Join(dir, "daemon.pipe")
	r := &FakeRunner{Sidechannel: SidechannelScript{Width: 4, ParentPID: 1000, ChildPID: 1001}}

	out, err := r.Run(context.Background(), "./daemon", []string{pipe}, 0)
	require.NoError(t, err)
	assert.True(t, out.Succeeded())

	f, err := os.Open(pipe)
	require.NoError(t, err)
	defer f.Close()
	rec, err := sidechannel.Read(f, binary.NativeEndian)
	require.NoError(t, err)
	assert.Equal(t, sidechannel.Record{Width: 4, ParentPID: 1000, ChildPID: 1001}, rec)
}

func TestFakeReader_Missing(t *testing.T) {
	r := &FakeReader{Script: ReaderScript{Tool: "nope", Missing: true}}
	_, err := r.Read(context.Background(), "/trace", tracescan.NewScanner())
	assert.ErrorIs(t, err, tracescan.ErrToolNotFound)
}

func TestFakeTracer_FailOn(t *testing.T) {
	f := &FakeTracer{FailOn: "enable", BaseDir: t.TempDir()}
	d, err := f.Create(context.Background())
	require.NoError(t, err)
	assert.Error(t, f.EnableEvent(context.Background(), d, "*"))
	assert.Equal(t, []string{"create", "enable *"}, f.Calls)
}
