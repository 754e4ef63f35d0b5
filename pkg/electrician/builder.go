// pkg/electrician/builder.go
package electrician

// Publish-only RelayClient on Electrician builder primitives. No builder types
// are stored on the struct; the wire and relay are captured by closures.

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/joeydtaylor/electrician/pkg/builder"
)

type builderClient struct {
	submit func(context.Context, []byte) error
	stop   func()
}

// NewBuilderRelay starts a Wire[[]byte] feeding a ForwardRelay to o.Targets.
// With no targets it returns a noop client.
func NewBuilderRelay(ctx context.Context, o RelayOptions) (RelayClient, error) {
	if len(o.Targets) == 0 {
		return noopRelay{}, nil
	}

	logger := builder.NewLogger(builder.LoggerWithDevelopment(false))
	wire := builder.NewWire[[]byte](ctx, builder.WireWithLogger[[]byte](logger))

	perf := builder.NewPerformanceOptions(o.CompressSnappy, builder.COMPRESS_SNAPPY)
	sec := builder.NewSecurityOptions(o.EncryptAESGCM, builder.ENCRYPTION_AES_GCM)
	tlsCfg := builder.NewTlsClientConfig(
		o.TLSEnable,
		o.TLSClientCrt, o.TLSClientKey, o.TLSCA,
		tls.VersionTLS13, tls.VersionTLS13,
	)

	relay := builder.NewForwardRelay[[]byte](
		ctx,
		builder.ForwardRelayWithLogger[[]byte](logger),
		builder.ForwardRelayWithTarget[[]byte](o.Targets...),
		builder.ForwardRelayWithPerformanceOptions[[]byte](perf),
		builder.ForwardRelayWithSecurityOptions[[]byte](sec, o.AESKey),
		builder.ForwardRelayWithTLSConfig[[]byte](tlsCfg),
		builder.ForwardRelayWithStaticHeaders[[]byte](o.StaticHeaders),
		builder.ForwardRelayWithInput(wire),
	)

	if err := wire.Start(ctx); err != nil {
		return nil, fmt.Errorf("builder wire start: %w", err)
	}
	if err := relay.Start(ctx); err != nil {
		wire.Stop()
		return nil, fmt.Errorf("builder relay start: %w", err)
	}
	return &builderClient{
		submit: func(ctx context.Context, b []byte) error { return wire.Submit(ctx, b) },
		stop: func() {
			relay.Stop()
			wire.Stop()
		},
	}, nil
}

// Publish sends bytes into the pipeline. Topic and headers ride the relay path.
func (c *builderClient) Publish(ctx context.Context, rr RelayRequest) error {
	if rr.Topic == "" {
		return fmt.Errorf("relay: missing topic")
	}
	return c.submit(ctx, rr.Body)
}

func (c *builderClient) Close() { c.stop() }
