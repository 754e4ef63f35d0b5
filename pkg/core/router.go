// core/router.go
package core

import (
	"context"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-assets/pkg/manifest"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-assets/pkg/middleware/logger"
	hmetrics "github.com/joeydtaylor/steeze-assets/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
	httpx "github.com/joeydtaylor/steeze-assets/pkg/transport/httpx"
)

// Resolver is the part of *resolver.Resolver the admin surface uses.
type Resolver interface {
	State() resolver.State
	Stats() resolver.Stats
	Manifest() *manifest.Manifest
	ResolveFrom(ctx context.Context, request, fromDir string) (resolver.ResolvedAsset, bool, error)
	Reload() *resolver.Attempt
}

type BuildDeps struct {
	Auth     *auth.Middleware
	LogMW    *logger.Middleware
	Metrics  http.Handler
	Router   httpx.Router
	Resolver Resolver

	// ResolveTimeout bounds how long /resolve waits for a first load.
	ResolveTimeout time.Duration
	// ReloadTimeout bounds how long POST /reload waits for the outcome.
	ReloadTimeout time.Duration
}

// BuildRouter wires the admin surface. It answers lookups and reports state;
// it never serves asset bytes.
func BuildRouter(d BuildDeps) http.Handler {
	if d.Router == nil {
		d.Router = httpx.NewChi()
	}
	if d.ResolveTimeout <= 0 {
		d.ResolveTimeout = 10 * time.Second
	}
	if d.ReloadTimeout <= 0 {
		d.ReloadTimeout = 90 * time.Second
	}

	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))
	if d.Auth != nil {
		r.Use(d.Auth.Middleware())
		if d.LogMW != nil {
			r.Use(d.LogMW.Middleware(d.Auth))
		}
		// metrics collector that references auth state without copying it
		r.Use(hmetrics.Collect(d.Auth))
	} else if d.LogMW != nil {
		r.Use(d.LogMW.Middleware(nil))
	}

	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics)
	}

	h := handlers{res: d.Resolver}
	r.Get("/healthz", http.HandlerFunc(h.healthz))
	r.Get("/readyz", http.HandlerFunc(h.readyz))
	r.Get("/resolve", withTimeout(h.resolve, d.ResolveTimeout))
	r.Get("/manifest", http.HandlerFunc(h.manifest))

	reload := withTimeout(h.reload, d.ReloadTimeout)
	if d.Auth != nil {
		r.Post("/reload", d.Auth.RequireAdmin(reload))
	} else {
		r.Post("/reload", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}))
	}
	return r.Mux()
}

func withTimeout(next http.HandlerFunc, d time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
