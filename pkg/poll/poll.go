// Package poll is the scheduled re-check primitive used by every wait phase:
// run a check now, then again every interval, until it reports done or a
// deadline passes. Waits are timers, never busy loops.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrDeadline is returned by Until when the deadline passes before check reports done.
var ErrDeadline = errors.New("poll: deadline exceeded")

// Check reports whether the awaited condition holds. A non-nil error stops polling.
type Check func(ctx context.Context) (done bool, err error)

// Until runs check immediately and then every interval. The last check runs at
// the deadline itself, so a condition that becomes true exactly at the deadline
// still wins. A zero deadline means no deadline.
func Until(ctx context.Context, interval time.Duration, deadline time.Time, check Check) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		wait := interval
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return ErrDeadline
			}
			if left < wait {
				wait = left
			}
		}

		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done. Zero or negative d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
