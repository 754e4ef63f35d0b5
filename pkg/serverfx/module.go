package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-assets/pkg/config"
	"github.com/joeydtaylor/steeze-assets/pkg/core"
	"github.com/joeydtaylor/steeze-assets/pkg/electrician"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
	"github.com/joeydtaylor/steeze-assets/pkg/transport/httpx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ---------- Options ----------

type Options struct {
	Service    string // for logs only
	ConfigPath string // --config; empty falls back to STEEZE_ASSETS_CONFIG, then the default file
	Listen     string // --listen; overrides [server].listen
}

// Module returns the complete Fx option set for the resolver daemon.
func Module(opts Options) fx.Option {
	if opts.Service == "" {
		opts.Service = "steeze-assets"
	}
	return fx.Options(
		fx.Supply(opts),
		fx.Provide(provideConfig),

		// auth, logger, metrics
		bundlefx.Module,

		// Router impl
		fx.Provide(httpx.NewChi),

		// Load events to Electrician
		fx.Provide(provideRelayClient),
		fx.Provide(providePublisher),

		fx.Provide(provideResolver),

		// Router
		fx.Provide(fx.Annotate(provideRouter, fx.ResultTags(`name:"app"`))),

		// Lifecycle
		fx.Invoke(registerHooks),
	)
}

// ---------- Providers ----------

func provideConfig(o Options) (config.Config, error) {
	cfg, err := config.Load(config.Path(o.ConfigPath))
	if err != nil {
		return config.Config{}, err
	}
	if o.Listen != "" {
		cfg.Server.Listen = o.Listen
	}
	return cfg, nil
}

func provideRelayClient(lc fx.Lifecycle, cfg config.Config, zl *zap.Logger) (electrician.RelayClient, error) {
	if !cfg.Relay.Enabled {
		return electrician.NewBuilderRelay(context.Background(), electrician.RelayOptions{})
	}
	ro, err := electrician.RelayOptionsFromEnv(cfg.Relay.Target)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	rc, err := electrician.NewBuilderRelay(ctx, ro)
	if err != nil {
		cancel()
		return nil, err
	}
	zl.Info("load events relayed", zap.Strings("targets", ro.Targets), zap.String("topic", cfg.Relay.Topic))
	lc.Append(fx.Hook{OnStop: func(context.Context) error { cancel(); return nil }})
	return rc, nil
}

func providePublisher(cfg config.Config, rc electrician.RelayClient, zl *zap.Logger) *electrician.Publisher {
	return electrician.NewPublisher(rc, cfg.Relay.Topic, zl)
}

type resolverDeps struct {
	fx.In
	Cfg       config.Config
	Log       *zap.Logger
	Metrics   *metrics.Observer
	Publisher *electrician.Publisher
}

func provideResolver(d resolverDeps) *resolver.Resolver {
	opts := d.Cfg.ResolverOptions(d.Log)
	opts.Observers = append(opts.Observers, d.Metrics)
	if d.Cfg.Relay.Enabled {
		opts.Observers = append(opts.Observers, d.Publisher)
	}
	return resolver.New(opts)
}

// ---------- Router ----------

type routerDeps struct {
	fx.In

	AuthMW   *auth.Middleware
	LogMW    *logger.Middleware
	Metrics  http.Handler `name:"metrics"`
	R        httpx.Router
	Resolver *resolver.Resolver
}

func provideRouter(d routerDeps) http.Handler {
	return core.BuildRouter(core.BuildDeps{
		Auth:     d.AuthMW,
		LogMW:    d.LogMW,
		Metrics:  d.Metrics,
		Router:   d.R,
		Resolver: d.Resolver,
	})
}

// ---------- Lifecycle (resolver + HTTP server) ----------

type serverDeps struct {
	fx.In
	Opts      Options
	Cfg       config.Config
	Logger    *zap.Logger
	Resolver  *resolver.Resolver
	Publisher *electrician.Publisher
	App       http.Handler `name:"app"`
}

func registerHooks(lc fx.Lifecycle, d serverDeps) {
	addr := d.Cfg.Server.Listen
	cert, key := d.Cfg.Server.TLSCert, d.Cfg.Server.TLSKey

	srv := &http.Server{
		Addr:         addr,
		Handler:      d.App,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // POST /reload waits for the load
		IdleTimeout:  60 * time.Second,
		TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
	}
	useTLS := fileExists(cert) && fileExists(key)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Discovery runs in the background; /readyz reports when it lands.
			d.Resolver.InitializeFunc(func(err error) {
				if err != nil && !errors.Is(err, resolver.ErrClosed) {
					d.Logger.Error("initial manifest load failed", zap.String("service", d.Opts.Service), zap.Error(err))
				}
			})

			if useTLS {
				d.Logger.Info("server starting (TLS)",
					zap.String("service", d.Opts.Service),
					zap.String("addr", addr),
					zap.String("cert", cert),
				)
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			} else {
				d.Logger.Info("server starting (PLAINTEXT)",
					zap.String("service", d.Opts.Service),
					zap.String("addr", addr),
				)
				go func() {
					srv.TLSConfig = nil
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping", zap.String("service", d.Opts.Service))
			err := srv.Shutdown(ctx)
			d.Resolver.Teardown()
			d.Publisher.Close()
			return err
		},
	})
}

// ---------- helpers ----------

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
