package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLTTng writes a shell script that appends its arguments to a log
// file and exits with 1 when the first argument equals failOn.
func fakeLTTng(t *testing.T, failOn string) (bin, log string) {
	t.Helper()
	dir := t.TempDir()
	bin = filepath.Join(dir, "lttng")
	log = filepath.Join(dir, "calls.log")

	script := `#!/bin/sh
echo "$@" >> "` + log + `"
if [ "$1" = "` + failOn + `" ]; then
	echo "Error: session daemon refused $1" >&2
	exit 1
fi
exit 0
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, log
}

func readCalls(t *testing.T, log string) []string {
	t.Helper()
	data, err := os.ReadFile(log)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, NamePrefix))
	assert.NotEqual(t, a, b)
}

func TestLTTng_Lifecycle(t *testing.T) {
	bin, log := fakeLTTng(t, "never")
	l := NewLTTng(bin, "lttng-sessiond", nil)
	l.TempDir = t.TempDir()
	ctx := context.Background()

	d, err := l.Create(ctx)
	require.NoError(t, err)
	assert.DirExists(t, d.ScratchDir)
	assert.Equal(t, filepath.Join(d.ScratchDir, "trace"), d.TracePath)

	require.NoError(t, l.EnableEvent(ctx, d, "*"))
	require.NoError(t, l.Start(ctx, d))
	require.NoError(t, l.Stop(ctx, d))
	require.NoError(t, l.Destroy(ctx, d))

	assert.Equal(t, []string{
		"create " + d.ID + " --output=" + d.TracePath,
		"enable-event --userspace --session=" + d.ID + " *",
		"start " + d.ID,
		"stop " + d.ID,
		"destroy " + d.ID,
	}, readCalls(t, log))
}

func TestLTTng_FailureCarriesClientOutput(t *testing.T) {
	bin, _ := fakeLTTng(t, "start")
	l := NewLTTng(bin, "lttng-sessiond", nil)

	err := l.Start(context.Background(), Descriptor{ID: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lttng start")
	assert.Contains(t, err.Error(), "session daemon refused start")
}

func TestLTTng_CreateFailureRemovesScratch(t *testing.T) {
	bin, _ := fakeLTTng(t, "create")
	l := NewLTTng(bin, "lttng-sessiond", nil)
	l.TempDir = t.TempDir()

	_, err := l.Create(context.Background())
	require.Error(t, err)

	entries, err := os.ReadDir(l.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLTTng_MissingClient(t *testing.T) {
	l := NewLTTng(filepath.Join(t.TempDir(), "absent"), "lttng-sessiond", nil)
	err := l.Stop(context.Background(), Descriptor{ID: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lttng stop")
}

func TestLTTng_AliveUsesProbe(t *testing.T) {
	l := NewLTTng("lttng", "lttng-sessiond", nil)
	l.Probe = ProbeFunc(func(context.Context) (bool, error) { return true, nil })

	alive, err := l.Alive(context.Background())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestProcessProbe(t *testing.T) {
	self, err := process.NewProcess(int32(os.Getpid()))
	require.NoError(t, err)
	name, err := self.Name()
	require.NoError(t, err)

	ok, err := ProcessProbe{Name: name}.Running(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ProcessProbe{Name: "tracecheck-no-such-daemon"}.Running(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
