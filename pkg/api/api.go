// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the probe engine over REST and websocket
// endpoints, next to the prometheus metrics and the generated OpenAPI
// schema.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/pkg/probe"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Engine is the probe surface the api exposes.
type Engine interface {
	// Do executes a request and blocks until its terminal result.
	Do(ctx context.Context, req probe.Request) (*probe.Result, error)
	// Stream executes a request and emits its events as they resolve.
	Stream(ctx context.Context, req probe.Request) (<-chan probe.Event, error)
	// Kinds returns the supported probe kinds.
	Kinds() []probe.Kind
}

// API is the api server of the skua.
type API interface {
	// Run serves the api until the context is cancelled.
	Run(ctx context.Context) error
	// Shutdown gracefully stops the server.
	Shutdown(ctx context.Context) error
}

var _ API = (*api)(nil)

type api struct {
	config    Config
	engine    Engine
	registry  *prometheus.Registry
	version   string
	server    *http.Server
	startedAt time.Time
}

// New creates a new api server.
func New(cfg Config, engine Engine, registry *prometheus.Registry, version string) API {
	return &api{
		config:   cfg,
		engine:   engine,
		registry: registry,
		version:  version,
	}
}

// Run serves the api. It returns when the server fails or the context
// is cancelled, shutting down gracefully in the latter case.
func (a *api) Run(ctx context.Context) error {
	ctx, cancel := logger.NewContextWithLogger(ctx)
	defer cancel()
	log := logger.FromContext(ctx)
	a.startedAt = time.Now().UTC()

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer, logger.Middleware(ctx))
	a.routes(router)

	a.server = &http.Server{
		Addr:              a.config.address(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	cErr := make(chan error, 1)
	go func() {
		cErr <- a.server.ListenAndServe()
	}()
	log.InfoContext(ctx, "Serving API", "address", a.server.Addr)

	select {
	case err := <-cErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		return a.Shutdown(context.WithoutCancel(ctx))
	}
}

// routes mounts all endpoints on the router.
func (a *api) routes(router chi.Router) {
	router.Get("/metrics", promhttp.HandlerFor(a.registry,
		promhttp.HandlerOpts{Registry: a.registry}).ServeHTTP)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/status", a.handleStatus)
		r.Get("/openapi.yaml", a.handleOpenAPI)
		r.Get("/ws", a.handleWS)

		r.Post("/ping", a.handleProbe(probe.KindEcho))
		r.Post("/tcping", a.handleProbe(probe.KindTCP))
		r.Post("/website", a.handleProbe(probe.KindHTTP))
		r.Post("/traceroute", a.handleProbe(probe.KindTrace))
		r.Post("/dns", a.handleProbe(probe.KindDNS))
	})
}

// Shutdown gracefully stops the server. It is safe to call multiple
// times and before Run.
func (a *api) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown api server: %w", err)
	}
	return nil
}
