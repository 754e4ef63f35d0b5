package resolver

import (
	"context"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"go.uber.org/zap"
)

// startWatch launches the change watcher once per lifetime.
func (r *Resolver) startWatch(ctx context.Context) {
	r.mu.Lock()
	if r.watching || ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.watching = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.watch(ctx)
	}()
}

// watch polls the handoff fingerprint every PollConfigInterval. A change that
// holds still for ReloadDelay triggers a Reload. A fingerprint that already
// triggered a reload is not retried until the file changes again.
func (r *Resolver) watch(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PollConfigInterval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	var handled, pending handoff.Fingerprint
	hasPending := false
	if s := r.snap.Load(); s != nil {
		handled = s.fingerprint
	}

	r.log.Debug("watching handoff file",
		zap.String("path", r.opts.HandoffPath),
		zap.Duration("interval", r.opts.PollConfigInterval),
		zap.Duration("debounce", r.opts.ReloadDelay),
	)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-ticker.C:
			cur, err := r.proto.Fingerprint()
			if err != nil {
				r.log.Warn("handoff fingerprint failed", zap.Error(err))
				continue
			}
			// A missing file is a producer mid-rewrite; keep serving.
			if cur.IsZero() || cur.Equal(handled) || (hasPending && cur.Equal(pending)) {
				continue
			}
			if s := r.snap.Load(); s != nil && cur.Equal(s.fingerprint) {
				handled = cur
				continue
			}
			pending, hasPending = cur, true
			if r.opts.ReloadDelay <= 0 {
				r.fire(ctx)
				handled, hasPending = pending, false
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(r.opts.ReloadDelay)
			debounceCh = debounceTimer.C
			r.log.Debug("handoff file changed, debouncing")

		case <-debounceCh:
			debounceCh = nil
			if hasPending {
				r.fire(ctx)
				handled, hasPending = pending, false
			}
		}
	}
}

// fire is Reload bound to the watcher's lifetime: once that lifetime is
// cancelled it never begins a new attempt.
func (r *Resolver) fire(ctx context.Context) {
	r.mu.Lock()
	if ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	a := r.current
	if a == nil || a.finished() {
		a = r.beginLocked(true)
	}
	r.mu.Unlock()

	r.log.Info("handoff file changed, reloading asset manifest", zap.String("path", r.opts.HandoffPath))
	select {
	case <-a.Done():
	case <-ctx.Done():
	}
}
