package resolver

import "time"

// ResolveResult classifies one Resolve call.
type ResolveResult int

const (
	ResolveHit ResolveResult = iota
	ResolveMiss
	ResolveNotAsset
)

func (r ResolveResult) String() string {
	switch r {
	case ResolveHit:
		return "hit"
	case ResolveMiss:
		return "miss"
	default:
		return "not_asset"
	}
}

// LoadEvent describes the outcome of one discovery/load attempt.
type LoadEvent struct {
	Attempt       int
	Reload        bool
	Entries       int
	SchemaVersion string
	ManifestPath  string
	Duration      time.Duration
	At            time.Time
	Err           error
}

// Observer is notified of state transitions, load outcomes and lookups.
// Callbacks run on resolver goroutines and must not call back into the Resolver.
type Observer interface {
	OnTransition(from, to State)
	OnLoad(ev LoadEvent)
	OnResolve(res ResolveResult)
}

// NopObserver can be embedded to implement only the callbacks you need.
type NopObserver struct{}

func (NopObserver) OnTransition(State, State) {}
func (NopObserver) OnLoad(LoadEvent)          {}
func (NopObserver) OnResolve(ResolveResult)   {}

type observers []Observer

func (os observers) OnTransition(from, to State) {
	for _, o := range os {
		o.OnTransition(from, to)
	}
}

func (os observers) OnLoad(ev LoadEvent) {
	for _, o := range os {
		o.OnLoad(ev)
	}
}

func (os observers) OnResolve(res ResolveResult) {
	for _, o := range os {
		o.OnResolve(res)
	}
}
