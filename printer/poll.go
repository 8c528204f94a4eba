package printer

import (
	"context"
	"errors"
	"time"
)

var errPollTimeout = errors.New("poll timed out")

// poll evaluates done immediately and then every interval until it returns true.
// It returns errPollTimeout once timeout elapses (zero means never) and ctx.Err()
// when ctx ends first.
func poll(ctx context.Context, interval, timeout time.Duration, done func() bool) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errPollTimeout
		case <-time.After(interval):
		}
	}
}
