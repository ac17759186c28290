// Package api wires the RULEFORGE HTTP surface: health/readiness
// probes, Prometheus metrics, and the parallel forward-chaining
// (/sessions) and backward-chaining (/devils) session surfaces, all
// against one shared corectx.CoreContext.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/ruleforge/ruleforge/pkg/api/v1"
	"github.com/ruleforge/ruleforge/pkg/audit"
	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/corectx"
	"github.com/ruleforge/ruleforge/pkg/logger"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewRouter assembles the full route table against cc. Split out of
// Serve so handler tests can drive the real routing, middleware
// included, through httptest.
func NewRouter(cc *corectx.CoreContext) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)
	r.Use(audit.NewAuditor(nil).Middleware)

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(cc))
	r.Get("/livez", healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/openapi.json", ServeOpenAPI)
	r.Mount("/api/v1/discovery", v1.DiscoveryRouter(logger.NewSugared(), cc.Bridge))

	forward := v1.NewSessionsHandler(cc, core.SessionTypeForward)
	backward := v1.NewSessionsHandler(cc, core.SessionTypeBackward)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", forward.Create)
		r.Get("/", forward.List)
		r.Get("/user/{user_id}", forward.ListByUser)
		r.Get("/{id}", forward.Get)
		r.Delete("/{id}", forward.Terminate)
		r.Post("/{id}/evaluate", forward.Evaluate)
		r.Post("/{id}/rules", forward.Rules)
		r.Post("/{id}/facts", forward.AssertFacts)
		r.Get("/{id}/facts", forward.FactsQuery)
		r.Post("/{id}/run", forward.Run)
		r.Post("/{id}/save", forward.Save)
	})

	r.Route("/devils", func(r chi.Router) {
		r.Post("/", backward.Create)
		r.Get("/", backward.List)
		r.Get("/user/{user_id}", backward.ListByUser)
		r.Get("/{id}", backward.Get)
		r.Delete("/{id}", backward.Terminate)
		r.Post("/{id}/query", backward.Query)
		r.Post("/{id}/consult", backward.Consult)
		r.Post("/{id}/save", backward.Save)
	})

	return r
}

// Serve starts the HTTP server on address and blocks until ctx is
// cancelled, at which point it shuts down gracefully.
func Serve(ctx context.Context, address string, cc *corectx.CoreContext) error {
	r := NewRouter(cc)

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting http server on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Infof("http server stopped")
	return nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz reports unready whenever the scheduler is at global admission
// capacity, so a load balancer can stop routing new session creations
// here without treating the process as unhealthy.
func readyz(cc *corectx.CoreContext) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if cc.Store.CountActive() >= cc.Config.MaxConcurrentSessions {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("at capacity"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
