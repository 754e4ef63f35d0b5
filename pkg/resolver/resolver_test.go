package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/lockfile"
	"github.com/joeydtaylor/steeze-assets/pkg/manifest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	root    string
	handoff string
	lock    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		root:    root,
		handoff: filepath.Join(root, "dist", "steeze-assets.json"),
		lock:    filepath.Join(root, "dist", "steeze-assets.json.lock"),
	}
}

func (f *fixture) options() Options {
	return Options{
		HandoffPath:               f.handoff,
		ProjectRoot:               f.root,
		PollConfigInterval:        10 * time.Millisecond,
		ValidPollInterval:         10 * time.Millisecond,
		LockFilePollInterval:      10 * time.Millisecond,
		WaitConfigTimeout:         time.Second,
		InitialWaitingNoticeDelay: -1,
	}
}

func (f *fixture) resolver(t *testing.T, mutate func(*Options)) *Resolver {
	t.Helper()
	opts := f.options()
	if mutate != nil {
		mutate(&opts)
	}
	r := New(opts)
	t.Cleanup(r.Teardown)
	return r
}

func (f *fixture) writeManifest(t *testing.T, name, body string) {
	t.Helper()
	path := filepath.Join(filepath.Dir(f.handoff), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) writeHandoff(t *testing.T, rec handoff.Record) {
	t.Helper()
	if rec.SchemaVersion == "" {
		rec.SchemaVersion = handoff.SchemaVersion
	}
	if err := handoff.Write(f.handoff, &rec); err != nil {
		t.Fatal(err)
	}
}

// ready writes a valid handoff pointing at assets.json with the given body.
func (f *fixture) ready(t *testing.T, body string, publicPath *string) {
	t.Helper()
	f.writeManifest(t, "assets.json", body)
	f.writeHandoff(t, handoff.Record{Valid: true, AssetsFile: "assets.json", PublicPath: publicPath})
}

func strptr(s string) *string { return &s }

type recorder struct {
	NopObserver
	mu          sync.Mutex
	transitions []State
	loads       []LoadEvent
	resolves    []ResolveResult
}

func (r *recorder) OnTransition(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *recorder) OnLoad(ev LoadEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, ev)
}

func (r *recorder) OnResolve(res ResolveResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves = append(r.resolves, res)
}

func (r *recorder) seen(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.transitions {
		if got == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResolveScenario(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, strptr("/test/"))
	r := f.resolver(t, nil)

	got, ok, err := r.Resolve(context.Background(), "a/b.jpg")
	if err != nil || !ok {
		t.Fatalf("resolve a/b.jpg: ok=%v err=%v", ok, err)
	}
	if got.URL != "/test/hash1.jpg" {
		t.Fatalf("url = %q", got.URL)
	}
	if got.Key != "a/b.jpg" || got.File != "hash1.jpg" {
		t.Fatalf("unexpected result %+v", got)
	}

	if _, ok, err := r.Resolve(context.Background(), "a/b"); ok || err != nil {
		t.Fatalf("a/b should not be an asset request, ok=%v err=%v", ok, err)
	}
	if r.State() != Ready {
		t.Fatalf("state = %v", r.State())
	}
}

func TestResolveSpellings(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, strptr("/p/"))
	r := f.resolver(t, nil)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name, request, from string
	}{
		{"bare", "a/b.jpg", ""},
		{"loader chain", "file-loader!url-loader?limit=1!a/b.jpg", ""},
		{"absolute", filepath.Join(f.root, "a", "b.jpg"), ""},
		{"dot segments", "./a/../a/b.jpg", ""},
		{"query", "a/b.jpg?v=3", ""},
		{"fragment", "a/b.jpg#frag", ""},
		{"relative to importer", "../b.jpg", filepath.Join(f.root, "a", "sub")},
		{"relative to relative importer", "./b.jpg", "a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := r.ResolveFrom(context.Background(), tc.request, tc.from)
			if err != nil || !ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if got.URL != "/p/hash1.jpg" {
				t.Fatalf("url = %q", got.URL)
			}
		})
	}
}

func TestExtensionlessNeverAsset(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b": "hash1", "a/b.jpg": "hash1.jpg"}}`, nil)
	rec := &recorder{}
	r := f.resolver(t, func(o *Options) { o.Observers = []Observer{rec} })

	for _, req := range []string{"a/b", "loader!a/b", "a.dir/b", "a/b?x.jpg"} {
		if _, ok, err := r.Resolve(context.Background(), req); ok || err != nil {
			t.Fatalf("%q: ok=%v err=%v", req, ok, err)
		}
	}
	if r.State() != Uninitialized {
		t.Fatalf("non-asset requests should not start discovery, state = %v", r.State())
	}
	if len(rec.resolves) != 4 || rec.resolves[0] != ResolveNotAsset {
		t.Fatalf("resolves = %v", rec.resolves)
	}
}

func TestMissIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	r := f.resolver(t, nil)
	if _, ok, err := r.Resolve(context.Background(), "a/c.jpg"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestPublicPath(t *testing.T) {
	cases := []struct {
		name     string
		record   *string
		override *string
		want     string
	}{
		{"absent", nil, nil, "/hash1.jpg"},
		{"empty", strptr(""), nil, "/hash1.jpg"},
		{"record", strptr("/static/"), nil, "/static/hash1.jpg"},
		{"override", strptr("/static/"), strptr("https://cdn.example.com/"), "https://cdn.example.com/hash1.jpg"},
		{"empty override", strptr("/static/"), strptr(""), "/hash1.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, tc.record)
			r := f.resolver(t, func(o *Options) { o.PublicPathOverride = tc.override })
			got, ok, err := r.Resolve(context.Background(), "a/b.jpg")
			if err != nil || !ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if got.URL != tc.want {
				t.Fatalf("url = %q, want %q", got.URL, tc.want)
			}
		})
	}
}

func TestConfigNotFoundAfterTimeout(t *testing.T) {
	f := newFixture(t)
	timeout := 100 * time.Millisecond
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = timeout })

	start := time.Now()
	err := r.Initialize(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, handoff.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	if err.Error() != "steeze-assets config not found" {
		t.Fatalf("message = %q", err.Error())
	}
	if elapsed < timeout {
		t.Fatalf("failed after %v, before the %v budget", elapsed, timeout)
	}
	if elapsed > timeout+500*time.Millisecond {
		t.Fatalf("failed after %v, long after the %v budget", elapsed, timeout)
	}
	if r.State() != Failed {
		t.Fatalf("state = %v", r.State())
	}
	if !strings.Contains(r.Stats().LastError, "not found") {
		t.Fatalf("last error = %q", r.Stats().LastError)
	}
}

func TestStartDelay(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {}}`, nil)
	r := f.resolver(t, func(o *Options) { o.StartDelay = 50 * time.Millisecond })

	start := time.Now()
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("discovery began before the start delay")
	}
}

func TestWaitsForLock(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	l, err := lockfile.Acquire(f.lock)
	if err != nil {
		t.Fatal(err)
	}
	r := f.resolver(t, nil)
	a := r.Start()

	waitFor(t, time.Second, func() bool { return r.State() == WaitingForLock })
	time.Sleep(30 * time.Millisecond)
	if a.Err() != nil || r.State() == Ready {
		t.Fatal("became ready while the lock was held")
	}
	if _, ok := r.Lookup("a/b.jpg"); ok {
		t.Fatal("lookup resolved before ready")
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if err := a.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("a/b.jpg"); !ok {
		t.Fatal("lookup missed after ready")
	}
}

func TestLockTimeout(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {}}`, nil)
	l, err := lockfile.Acquire(f.lock)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 80 * time.Millisecond })
	if err := r.Initialize(context.Background()); !errors.Is(err, handoff.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestSharedBudget(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "assets.json", `{"marked": {}}`)
	f.writeHandoff(t, handoff.Record{Valid: false, AssetsFile: "assets.json"})
	l, err := lockfile.Acquire(f.lock)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(200 * time.Millisecond)
		l.Release()
	}()

	// 200ms of lock wait plus a fresh 250ms for the invalid record would
	// take 450ms; one shared budget fails at 250ms.
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 250 * time.Millisecond })
	start := time.Now()
	err = r.Initialize(context.Background())
	elapsed := time.Since(start)
	if !errors.Is(err, handoff.ErrInvalidConfigTimeout) {
		t.Fatalf("expected ErrInvalidConfigTimeout, got %v", err)
	}
	if elapsed >= 400*time.Millisecond {
		t.Fatalf("budget was reset between phases: failed after %v", elapsed)
	}
}

func TestValidFlip(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "assets.json", `{"marked": {"a/b.jpg": "hash1.jpg"}}`)
	f.writeHandoff(t, handoff.Record{Valid: false, AssetsFile: "assets.json"})
	rec := &recorder{}
	r := f.resolver(t, func(o *Options) { o.Observers = []Observer{rec} })

	a := r.Start()
	waitFor(t, time.Second, func() bool { return r.State() == WaitingForValidConfig })
	flipped := time.Now()
	f.writeHandoff(t, handoff.Record{Valid: true, AssetsFile: "assets.json"})

	if err := a.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(flipped); took > 300*time.Millisecond {
		t.Fatalf("took %v to notice the valid record", took)
	}
	if !rec.seen(WaitingForValidConfig) || !rec.seen(Loading) || !rec.seen(Ready) {
		t.Fatalf("transitions = %v", rec.transitions)
	}
}

func TestInvalidConfigTimeout(t *testing.T) {
	f := newFixture(t)
	f.writeHandoff(t, handoff.Record{Valid: false, AssetsFile: "assets.json"})
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 60 * time.Millisecond })
	if err := r.Initialize(context.Background()); !errors.Is(err, handoff.ErrInvalidConfigTimeout) {
		t.Fatalf("expected ErrInvalidConfigTimeout, got %v", err)
	}
}

func TestConcurrentInitializeCoalesced(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, nil)

	first := r.Start()
	if second := r.Start(); second != first {
		t.Fatal("second Start did not join the in-flight attempt")
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- r.Initialize(context.Background()) }()
	}
	time.Sleep(30 * time.Millisecond)
	f.ready(t, `{"marked": {}}`, nil)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
	if got := r.Stats().Attempts; got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
	if again := r.Start(); again != first {
		t.Fatal("Start after success should return the finished attempt")
	}
}

func TestConcurrentFailureSharesError(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 40 * time.Millisecond })

	a, b := r.Start(), r.Start()
	errA := a.Wait(context.Background())
	errB := b.Wait(context.Background())
	if errA == nil || errA != errB {
		t.Fatalf("callers saw different outcomes: %v / %v", errA, errB)
	}

	// Resolve never restarts a failed attempt.
	if _, _, err := r.Resolve(context.Background(), "a/b.jpg"); err != errA {
		t.Fatalf("resolve err = %v", err)
	}
	if got := r.Stats().Attempts; got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}

	// An explicit Start after failure begins afresh.
	if next := r.Start(); next == a || next.ID() != 2 {
		t.Fatalf("expected a fresh attempt, got id %d", next.ID())
	}
}

func TestVersionMismatch(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "assets.json", `{"marked": {}}`)
	f.writeHandoff(t, handoff.Record{SchemaVersion: "0.9.0", Valid: true, AssetsFile: "assets.json"})

	r := f.resolver(t, nil)
	start := time.Now()
	err := r.Initialize(context.Background())
	if !errors.Is(err, handoff.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("version mismatch should fail without waiting out the budget")
	}

	r2 := f.resolver(t, func(o *Options) { o.ExpectedVersion = "0.9.0" })
	if err := r2.Initialize(context.Background()); err != nil {
		t.Fatalf("expected version override to pass, got %v", err)
	}
}

func TestVersionCheckedOnlyAfterLockClears(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "assets.json", `{"marked": {"a/b.jpg": "hash1.jpg"}}`)
	// The previous build left an older schema behind; the locked build writes the current one.
	f.writeHandoff(t, handoff.Record{SchemaVersion: "0.9.0", Valid: true, AssetsFile: "assets.json"})
	l, err := lockfile.Acquire(f.lock)
	if err != nil {
		t.Fatal(err)
	}

	rebuilt := make(chan error, 1)
	go func() {
		time.Sleep(40 * time.Millisecond)
		rec := &handoff.Record{SchemaVersion: handoff.SchemaVersion, Valid: true, AssetsFile: "assets.json"}
		if err := handoff.Write(f.handoff, rec); err != nil {
			rebuilt <- err
			return
		}
		rebuilt <- l.Release()
	}()

	r := f.resolver(t, nil)
	start := time.Now()
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := <-rebuilt; err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("loaded before the build lock cleared")
	}
	if got, ok := r.Lookup("a/b.jpg"); !ok || got.File != "hash1.jpg" {
		t.Fatalf("lookup = %+v %v", got, ok)
	}
}

func TestVersionMismatchNamesHandoffFile(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "assets.json", `{"marked": {}}`)
	f.writeHandoff(t, handoff.Record{SchemaVersion: "0.9.0", Valid: true, AssetsFile: "assets.json"})

	err := f.resolver(t, nil).Initialize(context.Background())
	if !errors.Is(err, handoff.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), f.handoff) || strings.Contains(err.Error(), "assets.json:") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCorruptHandoff(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(filepath.Dir(f.handoff), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.handoff, []byte("bad"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := f.resolver(t, nil)
	if err := r.Initialize(context.Background()); !errors.Is(err, handoff.ErrInvalidConfigParse) {
		t.Fatalf("expected ErrInvalidConfigParse, got %v", err)
	}

	retry := f.resolver(t, func(o *Options) { o.CorruptPolicy = handoff.CorruptRetry })
	a := retry.Start()
	time.Sleep(30 * time.Millisecond)
	f.ready(t, `{"marked": {}}`, nil)
	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("retry policy should recover, got %v", err)
	}
}

func TestAssetsFileErrors(t *testing.T) {
	cases := []struct {
		name string
		body string // "" means the manifest is never written
		want error
	}{
		{"missing", "", handoff.ErrAssetsFileMissing},
		{"syntax", `{"marked": `, handoff.ErrAssetsFileInvalid},
		{"array", `["a/b.jpg"]`, handoff.ErrAssetsFileInvalid},
		{"empty", `   `, handoff.ErrAssetsFileInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.body != "" {
				f.writeManifest(t, "assets.json", tc.body)
			}
			f.writeHandoff(t, handoff.Record{Valid: true, AssetsFile: "assets.json"})
			r := f.resolver(t, nil)
			err := r.Initialize(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMarkedNotObjectIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": "nope"}`, nil)
	r := f.resolver(t, nil)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := r.Stats().Entries; n != 0 {
		t.Fatalf("entries = %d", n)
	}
}

func TestPostProcess(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	calls := 0
	r := f.resolver(t, func(o *Options) {
		o.PostProcess = func(m *manifest.Manifest) *manifest.Manifest {
			calls++
			m.Marked["extra/c.png"] = "hash2.png"
			return m
		}
	})
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("post process ran %d times", calls)
	}
	if got, ok := r.Lookup("extra/c.png"); !ok || got.URL != "/hash2.png" {
		t.Fatalf("post-processed entry not visible: %+v ok=%v", got, ok)
	}

	f2 := newFixture(t)
	f2.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	empty := f2.resolver(t, func(o *Options) {
		o.PostProcess = func(*manifest.Manifest) *manifest.Manifest { return nil }
	})
	if err := empty.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := empty.Lookup("a/b.jpg"); ok {
		t.Fatal("nil post-process result should leave an empty manifest")
	}
}

func TestResolveBlocksUntilReady(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, nil)

	done := make(chan ResolvedAsset, 1)
	go func() {
		got, ok, err := r.Resolve(context.Background(), "a/b.jpg")
		if err != nil || !ok {
			t.Errorf("ok=%v err=%v", ok, err)
		}
		done <- got
	}()

	select {
	case <-done:
		t.Fatal("resolved before the manifest was loaded")
	case <-time.After(40 * time.Millisecond):
	}
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)

	select {
	case got := <-done:
		if got.URL != "/hash1.jpg" {
			t.Fatalf("url = %q", got.URL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resolve never returned")
	}
}

func TestResolveHonorsContext(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := r.Resolve(ctx, "a/b.jpg"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInitializeFunc(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {}}`, nil)
	r := f.resolver(t, nil)

	got := make(chan error, 1)
	r.InitializeFunc(func(err error) { got <- err })
	select {
	case err := <-got:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestTeardown(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 10 * time.Second })

	a := r.Start()
	time.Sleep(20 * time.Millisecond)
	r.Teardown()

	select {
	case <-a.Done():
	default:
		t.Fatal("teardown returned with the attempt still running")
	}
	if !errors.Is(a.Err(), ErrClosed) {
		t.Fatalf("pending waiter got %v, want ErrClosed", a.Err())
	}
	if r.State() != Uninitialized {
		t.Fatalf("state = %v", r.State())
	}

	// A torn-down resolver can be brought up again.
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	if _, ok, err := r.Resolve(context.Background(), "a/b.jpg"); err != nil || !ok {
		t.Fatalf("after restart: ok=%v err=%v", ok, err)
	}
}

func TestNoAttemptBeginsWhileTearingDown(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 10 * time.Second })

	r.mu.Lock()
	r.closing = true
	a := r.beginLocked(false)
	attempts, lifetime := r.attempts, r.lifetime
	r.closing = false
	r.mu.Unlock()

	if !a.finished() || !errors.Is(a.Err(), ErrClosed) {
		t.Fatalf("attempt during teardown: finished=%v err=%v", a.finished(), a.Err())
	}
	if attempts != 0 || lifetime != nil {
		t.Fatalf("teardown window began work: attempts=%d lifetime=%v", attempts, lifetime)
	}
}

func TestTeardownWithConcurrentStarts(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t, func(o *Options) { o.WaitConfigTimeout = 10 * time.Second })
	r.Start()
	time.Sleep(20 * time.Millisecond)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					r.Start()
					r.Lookup("a/b.jpg")
				}
			}
		}()
	}

	start := time.Now()
	r.Teardown()
	took := time.Since(start)
	close(stop)
	wg.Wait()

	if took > 2*time.Second {
		t.Fatalf("teardown took %v; it waited on an attempt begun while draining", took)
	}
}

func TestFailedReloadKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	r := f.resolver(t, nil)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(filepath.Dir(f.handoff), "assets.json")); err != nil {
		t.Fatal(err)
	}
	err := r.Reload().Wait(context.Background())
	if !errors.Is(err, handoff.ErrAssetsFileMissing) {
		t.Fatalf("expected ErrAssetsFileMissing, got %v", err)
	}
	if r.State() != Failed {
		t.Fatalf("state = %v", r.State())
	}
	if got, ok := r.Lookup("a/b.jpg"); !ok || got.URL != "/hash1.jpg" {
		t.Fatal("failed reload dropped the previous snapshot")
	}
	st := r.Stats()
	if st.Reloads != 1 || st.LastError == "" {
		t.Fatalf("stats = %+v", st)
	}
}

func TestWatchReloads(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, nil)
	rec := &recorder{}
	r := f.resolver(t, func(o *Options) {
		o.Watch = true
		o.ReloadDelay = 20 * time.Millisecond
		o.Observers = []Observer{rec}
	})
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.writeManifest(t, "assets.2.json", `{"marked": {"a/b.jpg": "hash2.jpg"}}`)
	f.writeHandoff(t, handoff.Record{Valid: true, AssetsFile: "assets.2.json"})

	waitFor(t, 2*time.Second, func() bool {
		got, ok := r.Lookup("a/b.jpg")
		return ok && got.URL == "/hash2.jpg"
	})
	if r.Stats().Reloads < 1 {
		t.Fatal("no reload recorded")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.loads) < 2 || !rec.loads[len(rec.loads)-1].Reload {
		t.Fatalf("loads = %+v", rec.loads)
	}
}

func TestSnapshotWrite(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {"a/b.jpg": "hash1.jpg"}}`, strptr("/static/"))
	out := filepath.Join(f.root, "cache", "resolved.json")
	r := f.resolver(t, func(o *Options) { o.SnapshotPath = out })
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"publicPath":"/static/"`, `"a/b.jpg":"hash1.jpg"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("snapshot %s missing %s", b, want)
		}
	}
}

func TestSnapshotWriteFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.ready(t, `{"marked": {}}`, nil)
	blocker := filepath.Join(f.root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	r := f.resolver(t, func(o *Options) {
		o.SnapshotPath = filepath.Join(blocker, "resolved.json")
		o.Logger = zap.New(core)
	})
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("write failure must not fail the load: %v", err)
	}
	entries := logs.FilterMessageSnippet("failed write config file").All()
	if len(entries) != 1 {
		t.Fatalf("expected one write failure warning, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level = %v", entries[0].Level)
	}
}

func TestStateString(t *testing.T) {
	if Ready.String() != "ready" || WaitingForLock.String() != "waiting_for_lock" {
		t.Fatal("unexpected state names")
	}
	if State(99).String() != "unknown" {
		t.Fatal("out of range state should be unknown")
	}
	if len(States()) != 7 {
		t.Fatal("States should list every state")
	}
}
