package resolver

import (
	"context"
	"time"
)

// Attempt is one discovery/wait/load sequence. Every caller that joins the same
// attempt observes the same outcome.
type Attempt struct {
	id      int
	reload  bool
	started time.Time
	done    chan struct{}
	err     error
}

func newAttempt(id int, reload bool) *Attempt {
	return &Attempt{id: id, reload: reload, started: time.Now(), done: make(chan struct{})}
}

// ID is the attempt's sequence number within its Resolver.
func (a *Attempt) ID() int { return a.id }

// Done is closed once the attempt reached Ready or Failed.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Err is nil until Done is closed, then the attempt's outcome.
func (a *Attempt) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Wait blocks until the attempt finishes or ctx is done.
func (a *Attempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Attempt) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Attempt) complete(err error) {
	a.err = err
	close(a.done)
}
