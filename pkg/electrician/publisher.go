package electrician

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
	"go.uber.org/zap"
)

// LoadEvent is the wire form of one manifest load outcome.
type LoadEvent struct {
	ID            string    `json:"id"`
	Outcome       string    `json:"outcome"`
	Attempt       int       `json:"attempt"`
	Reload        bool      `json:"reload"`
	Entries       int       `json:"entries"`
	ManifestPath  string    `json:"manifestPath,omitempty"`
	SchemaVersion string    `json:"schemaVersion,omitempty"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher relays resolver load outcomes to a topic. Publishing happens off
// the resolver's goroutine; a slow relay never delays Ready.
type Publisher struct {
	resolver.NopObserver

	client  RelayClient
	topic   string
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewPublisher(client RelayClient, topic string, log *zap.Logger) *Publisher {
	if client == nil {
		client = noopRelay{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, topic: topic, log: log, timeout: 5 * time.Second}
}

func (p *Publisher) OnLoad(ev resolver.LoadEvent) {
	out := LoadEvent{
		ID:            uuid.NewString(),
		Outcome:       handoff.KindName(ev.Err),
		Attempt:       ev.Attempt,
		Reload:        ev.Reload,
		Entries:       ev.Entries,
		ManifestPath:  ev.ManifestPath,
		SchemaVersion: ev.SchemaVersion,
		At:            ev.At.UTC(),
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	body, err := codec.JSONStrict.Marshal(out)
	if err != nil {
		p.log.Warn("load event encode failed", zap.Error(err))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		err := p.client.Publish(ctx, RelayRequest{
			Topic:   p.topic,
			Body:    body,
			Headers: map[string]string{"content-type": codec.JSONStrict.ContentType(), "event-id": out.ID},
		})
		if err != nil {
			p.log.Warn("load event publish failed", zap.String("topic", p.topic), zap.String("id", out.ID), zap.Error(err))
		}
	}()
}

// Flush waits for in-flight publishes.
func (p *Publisher) Flush() { p.wg.Wait() }

// Close flushes and shuts the relay down.
func (p *Publisher) Close() {
	p.Flush()
	p.client.Close()
}
