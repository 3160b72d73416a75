package session

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Probe checks whether the tracing service's daemon is running.
type Probe interface {
	Running(ctx context.Context) (bool, error)
}

// ProcessProbe looks for a process with the given executable name.
type ProcessProbe struct {
	Name string
}

// Running reports whether any visible process is named p.Name.
func (p ProcessProbe) Running(ctx context.Context) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// Raced with exit or not ours to inspect.
			continue
		}
		if name == p.Name {
			return true, nil
		}
	}
	return false, nil
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (bool, error)

// Running calls f.
func (f ProbeFunc) Running(ctx context.Context) (bool, error) {
	return f(ctx)
}
