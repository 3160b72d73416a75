package sidechannel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// PollInterval is how often Open looks for a side channel that does not
// exist yet.
const PollInterval = 20 * time.Millisecond

// Open opens the side-channel at path for reading. A daemonizing subject
// creates its pipe from the detached child, possibly after the launching
// process has already exited, so a missing path is retried every
// PollInterval. On a named pipe the open then blocks until the writer
// opens its end. ctx bounds both waits and should carry a deadline.
//
// If ctx expires during a blocked open the opening goroutine stays parked
// in the kernel until a writer appears or the process exits.
func Open(ctx context.Context, path string) (*os.File, error) {
	type opened struct {
		f   *os.File
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		for {
			f, err := os.Open(path)
			if !errors.Is(err, fs.ErrNotExist) {
				ch <- opened{f, err}
				return
			}
			select {
			case <-ctx.Done():
				ch <- opened{err: fmt.Errorf("%w: %w", ctx.Err(), err)}
				return
			case <-time.After(PollInterval):
			}
		}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("open side-channel: %w", o.err)
		}
		return o.f, nil
	case <-ctx.Done():
		go func() {
			if o := <-ch; o.f != nil {
				o.f.Close()
			}
		}()
		return nil, fmt.Errorf("open side-channel %s: %w", path, ctx.Err())
	}
}
