// Package server exposes liveness, readiness and Prometheus metrics over
// HTTP for the long-running sync.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Disabled turns off a listener when passed as its address.
const Disabled = "0"

// Server serves /healthz and /readyz on HealthAddr and /metrics on
// MetricsAddr. Readiness fails until MarkReady is called.
type Server struct {
	HealthAddr  string
	MetricsAddr string
	Log         logr.Logger

	ready atomic.Bool
}

// MarkReady reports the first completed sync pass.
func (s *Server) MarkReady() { s.ready.Store(true) }

func (s *Server) readyCheck(_ *http.Request) error {
	if !s.ready.Load() {
		return errors.New("first sync has not completed")
	}
	return nil
}

// HealthHandler serves the probe endpoints.
func (s *Server) HealthHandler() http.Handler {
	mux := http.NewServeMux()
	add := func(path string, h http.Handler) {
		mux.Handle(path, http.StripPrefix(path, h))
		mux.Handle(path+"/", http.StripPrefix(path, h))
	}
	add("/healthz", &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}})
	add("/readyz", &healthz.Handler{Checks: map[string]healthz.Checker{"sync": s.readyCheck}})
	return mux
}

// MetricsHandler serves the controller-runtime registry, which carries the
// sync metrics.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	return mux
}

// Start serves until ctx is done, then shuts the listeners down.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	serve := func(name, addr string, h http.Handler) {
		if addr == "" || addr == Disabled {
			return
		}
		srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			s.Log.Info("starting server", "kind", name, "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	serve("health probe", s.HealthAddr, s.HealthHandler())
	serve("metrics", s.MetricsAddr, s.MetricsHandler())
	return g.Wait()
}
