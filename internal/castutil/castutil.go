// Package castutil starts mirror servers next to a running feed.
package castutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
)

// Runner is a long-lived server such as caststream.Server.
type Runner interface {
	Run(ctx context.Context) error
}

// readier is implemented by servers that signal when their listener is bound.
type readier interface {
	Ready() <-chan struct{}
}

// startupGrace bounds the wait for a bind failure from servers without Ready.
var startupGrace = 250 * time.Millisecond

// StartCastServer runs srv in the background and returns once it is listening.
// A failure before that point is returned; later failures are logged and
// written to errOut.
func StartCastServer(ctx context.Context, srv Runner, label string, logger logr.Logger, errOut io.Writer) error {
	if srv == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	var ready <-chan struct{}
	if r, ok := srv.(readier); ok {
		ready = r.Ready()
	}
	grace := time.NewTimer(startupGrace)
	defer grace.Stop()
	for {
		select {
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			if errOut != nil {
				fmt.Fprintf(errOut, "%s failed: %v\n", label, err)
			}
			return err
		case <-ready:
			go watch(errCh, label, logger, errOut)
			return nil
		case <-grace.C:
			if ready != nil {
				// Keep waiting for the bind; Ready or an error will follow.
				continue
			}
			go watch(errCh, label, logger, errOut)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func watch(errCh <-chan error, label string, logger logr.Logger, errOut io.Writer) {
	for err := range errCh {
		logger.Error(err, "mirror server exited", "server", label)
		if errOut != nil {
			fmt.Fprintf(errOut, "%s exited: %v\n", label, err)
		}
	}
}
