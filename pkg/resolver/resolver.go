package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/manifest"
	"go.uber.org/zap"
)

// ErrClosed is returned to waiters whose attempt was abandoned by Teardown.
var ErrClosed = errors.New("resolver: torn down")

// snapshot is what lookups read. It is replaced wholesale, never mutated.
type snapshot struct {
	manifest    *manifest.Manifest
	record      *handoff.Record
	publicPath  string
	fingerprint handoff.Fingerprint
	loadedAt    time.Time
}

// Stats is a point-in-time view of a Resolver.
type Stats struct {
	State         State     `json:"state"`
	Attempts      int       `json:"attempts"`
	Reloads       int       `json:"reloads"`
	Entries       int       `json:"entries"`
	SchemaVersion string    `json:"schemaVersion,omitempty"`
	ManifestPath  string    `json:"manifestPath,omitempty"`
	PublicPath    string    `json:"publicPath,omitempty"`
	LoadedAt      time.Time `json:"loadedAt,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
}

// Resolver waits for the build's handoff file, loads the asset manifest it
// points at and answers asset lookups from an immutable snapshot.
type Resolver struct {
	opts  Options
	proto *handoff.Protocol
	log   *zap.Logger
	obs   observers

	snap atomic.Pointer[snapshot]

	mu       sync.Mutex
	state    State
	current  *Attempt
	lastErr  error
	attempts int
	reloads  int
	lifetime context.Context
	cancel   context.CancelFunc
	watching bool
	closing  bool // Teardown is waiting on wg
	wg       sync.WaitGroup
}

// New builds an idle Resolver. Nothing touches the filesystem until Start,
// Initialize or the first Resolve.
func New(opts Options) *Resolver {
	opts.defaults()
	log := opts.Logger.Named("resolver")
	return &Resolver{
		opts: opts,
		proto: &handoff.Protocol{
			Path:   opts.HandoffPath,
			Policy: opts.CorruptPolicy,
			Logger: log,
		},
		log: log,
		obs: observers(opts.Observers),
	}
}

// Options returns the effective options after defaults.
func (r *Resolver) Options() Options { return r.opts }

// Start begins an attempt, or joins the one already in flight. A finished
// successful attempt is returned as-is; after a failure a fresh attempt runs.
func (r *Resolver) Start() *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.current; a != nil && (!a.finished() || a.err == nil) {
		return a
	}
	return r.beginLocked(false)
}

// Initialize starts (or joins) an attempt and blocks until it finishes.
func (r *Resolver) Initialize(ctx context.Context) error {
	return r.Start().Wait(ctx)
}

// InitializeFunc starts (or joins) an attempt and calls done with its outcome
// from a separate goroutine.
func (r *Resolver) InitializeFunc(done func(error)) {
	a := r.Start()
	go func() {
		<-a.Done()
		if done != nil {
			done(a.Err())
		}
	}()
}

// Reload re-runs discovery and loading. The current snapshot keeps serving
// until the new one is ready; a failed reload leaves it in place.
func (r *Resolver) Reload() *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.current; a != nil && !a.finished() {
		return a
	}
	return r.beginLocked(true)
}

// Teardown cancels any in-flight attempt and the watcher, waits for them to
// exit and returns the Resolver to Uninitialized. Waiters on the abandoned
// attempt receive ErrClosed. A torn-down Resolver can be started again.
func (r *Resolver) Teardown() {
	r.mu.Lock()
	r.closing = true
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = nil
	r.lifetime = nil
	r.mu.Unlock()
	r.wg.Wait()

	r.mu.Lock()
	r.closing = false
	prev := r.state
	r.state = Uninitialized
	r.current = nil
	r.lastErr = nil
	r.watching = false
	r.mu.Unlock()
	r.snap.Store(nil)

	if prev != Uninitialized {
		r.obs.OnTransition(prev, Uninitialized)
		r.log.Debug("resolver torn down", zap.Stringer("from", prev))
	}
}

// State reports the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats reports counters and the active snapshot's metadata.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	st := Stats{State: r.state, Attempts: r.attempts, Reloads: r.reloads}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.mu.Unlock()

	if s := r.snap.Load(); s != nil {
		st.Entries = s.manifest.Count()
		st.SchemaVersion = s.record.SchemaVersion
		st.ManifestPath = s.record.ManifestPath
		st.PublicPath = s.publicPath
		st.LoadedAt = s.loadedAt
	}
	return st
}

// Manifest returns a copy of the active manifest, or nil before the first load.
func (r *Resolver) Manifest() *manifest.Manifest {
	s := r.snap.Load()
	if s == nil {
		return nil
	}
	return s.manifest.Clone()
}

// PublicPath returns the active URL prefix, or "" before the first load.
func (r *Resolver) PublicPath() string {
	if s := r.snap.Load(); s != nil {
		return s.publicPath
	}
	return ""
}

// pending returns the attempt lookups should wait on. A failed attempt is
// returned as-is; lookups never restart discovery.
func (r *Resolver) pending() *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return r.current
	}
	return r.beginLocked(false)
}

// beginLocked starts a new attempt. While Teardown is draining it hands back
// an attempt that has already finished with ErrClosed.
func (r *Resolver) beginLocked(reload bool) *Attempt {
	if r.closing {
		a := newAttempt(r.attempts, reload)
		a.complete(ErrClosed)
		return a
	}
	if r.lifetime == nil {
		r.lifetime, r.cancel = context.WithCancel(context.Background())
	}
	r.attempts++
	if reload {
		r.reloads++
	}
	a := newAttempt(r.attempts, reload)
	r.current = a
	ctx := r.lifetime

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		snap, err := r.run(ctx, a)
		r.finish(ctx, a, snap, err)
	}()
	return a
}

func (r *Resolver) setState(ctx context.Context, to State) {
	r.mu.Lock()
	if ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	from := r.state
	r.state = to
	r.mu.Unlock()
	if from != to {
		r.log.Debug("resolver state", zap.Stringer("from", from), zap.Stringer("to", to))
		r.obs.OnTransition(from, to)
	}
}

func (r *Resolver) finish(ctx context.Context, a *Attempt, snap *snapshot, err error) {
	if ctx.Err() != nil {
		a.complete(ErrClosed)
		return
	}

	to := Ready
	if err != nil {
		to = Failed
	}
	r.mu.Lock()
	from := r.state
	r.state = to
	r.lastErr = err
	r.mu.Unlock()
	if from != to {
		r.obs.OnTransition(from, to)
	}

	ev := LoadEvent{
		Attempt:  a.id,
		Reload:   a.reload,
		Duration: time.Since(a.started),
		At:       time.Now(),
		Err:      err,
	}
	if snap != nil {
		ev.Entries = snap.manifest.Count()
		ev.SchemaVersion = snap.record.SchemaVersion
		ev.ManifestPath = snap.record.ManifestPath
	}
	if err != nil {
		r.log.Error("asset manifest load failed",
			zap.Int("attempt", a.id),
			zap.Bool("reload", a.reload),
			zap.Error(err),
		)
	} else {
		r.log.Info("asset manifest ready",
			zap.Int("attempt", a.id),
			zap.Bool("reload", a.reload),
			zap.Int("entries", ev.Entries),
			zap.String("manifest", ev.ManifestPath),
			zap.Duration("took", ev.Duration),
		)
	}
	r.obs.OnLoad(ev)
	a.complete(err)
}
