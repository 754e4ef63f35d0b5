package metrics

import (
	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
)

// DefaultInstance labels the daemon's single resolver.
const DefaultInstance = "default"

// Observer feeds one resolver's events into the collectors. Every series
// carries the instance label, so resolvers sharing a process stay apart.
type Observer struct {
	instance string
}

func NewObserver(instance string) *Observer {
	if instance == "" {
		instance = DefaultInstance
	}
	return &Observer{instance: instance}
}

// ProvideObserver is the fx constructor for the daemon's resolver.
func ProvideObserver() *Observer { return NewObserver(DefaultInstance) }

var _ resolver.Observer = (*Observer)(nil)

func (o *Observer) OnTransition(_, to resolver.State) {
	for _, s := range resolver.States() {
		v := 0.0
		if s == to {
			v = 1
		}
		resolverState.WithLabelValues(o.instance, s.String()).Set(v)
	}
}

func (o *Observer) OnLoad(ev resolver.LoadEvent) {
	loadDuration.WithLabelValues(o.instance).Observe(ev.Duration.Seconds())
	loadTotal.WithLabelValues(o.instance, handoff.KindName(ev.Err)).Inc()
	if ev.Err == nil {
		manifestEntries.WithLabelValues(o.instance).Set(float64(ev.Entries))
	}
}

func (o *Observer) OnResolve(res resolver.ResolveResult) {
	resolveTotal.WithLabelValues(o.instance, res.String()).Inc()
}
