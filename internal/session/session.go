// Package session drives the tracing service's session lifecycle on behalf
// of the harness.
//
// The harness only sequences calls: create, enable, start, run the
// subject, stop, destroy. Any failure is an environment problem and is
// never retried.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// NamePrefix starts every session name created by the harness.
const NamePrefix = "tracecheck-daemon-"

// Descriptor identifies one tracing session and the files it owns.
type Descriptor struct {
	// ID is the session name known to the tracing service.
	ID string
	// TracePath is where the service writes the trace.
	TracePath string
	// ScratchDir holds TracePath and any other per-run files. It is
	// removed when the harness exits.
	ScratchDir string
}

// Tracer is the tracing service as seen by the harness.
type Tracer interface {
	// Alive reports whether the tracing service is reachable.
	Alive(ctx context.Context) (bool, error)
	Create(ctx context.Context) (Descriptor, error)
	EnableEvent(ctx context.Context, d Descriptor, pattern string) error
	Start(ctx context.Context, d Descriptor) error
	Stop(ctx context.Context, d Descriptor) error
	Destroy(ctx context.Context, d Descriptor) error
}

// NewID returns a fresh, time ordered session name.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return NamePrefix + id.String(), nil
}
