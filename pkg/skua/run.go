// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package skua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/internal/telemetry"
	"github.com/skua-project/skua/pkg/api"
	"github.com/skua-project/skua/pkg/config"
	"github.com/skua-project/skua/pkg/factory"
	"github.com/skua-project/skua/pkg/probe"
)

const shutdownTimeout = time.Second * 90

// Skua is the main struct of the skua service
type Skua struct {
	// config is the startup configuration of the service
	config *config.Config
	// engine executes the probe sessions
	engine *probe.Engine
	// api is the service's API
	api api.API
	// telemetry is used to collect metrics and traces
	telemetry telemetry.Provider
	// cErr is used to handle non-recoverable errors of the skua components
	cErr chan error
	// cDone is used to signal that the service was shut down because of an error
	cDone chan struct{}
	// shutOnce is used to ensure that the shutdown function is only called once
	shutOnce sync.Once
}

// New creates a new skua service from a given configuration
func New(cfg *config.Config, version string) *Skua {
	tel := telemetry.New(cfg.Telemetry, version)
	engine := factory.NewEngine(cfg.Engine)

	registry := tel.GetRegistry()
	registry.MustRegister(engine.Collectors()...)
	telemetry.RegisterBuildInfo(registry, version)

	return &Skua{
		config:    cfg,
		engine:    engine,
		api:       api.New(cfg.Api, engine, registry, version),
		telemetry: tel,
		cErr:      make(chan error, 1),
		cDone:     make(chan struct{}, 1),
		shutOnce:  sync.Once{},
	}
}

// Run starts the skua service
func (s *Skua) Run(ctx context.Context) error {
	ctx, cancel := logger.NewContextWithLogger(ctx)
	log := logger.FromContext(ctx)
	defer cancel()

	err := s.telemetry.InitTracing(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	go func() {
		s.cErr <- s.api.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
		case err := <-s.cErr:
			if err != nil {
				log.Error("Non-recoverable error in skua component", "error", err)
				s.shutdown(ctx)
			}
		case <-s.cDone:
			log.InfoContext(ctx, "Skua was shut down")
			return ErrFinalShutdown
		}
	}
}

// shutdown shuts down the service and all managed components gracefully.
func (s *Skua) shutdown(ctx context.Context) {
	errC := ctx.Err()
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.shutOnce.Do(func() {
		log.InfoContext(ctx, "Shutting down skua")
		sErrs := ErrShutdown{
			errAPI:       s.api.Shutdown(ctx),
			errTelemetry: s.telemetry.Shutdown(ctx),
		}

		if sErrs.HasError() {
			log.ErrorContext(ctx, "Failed to shutdown gracefully", "contextError", errC, "errors", sErrs)
		}

		// Signal that shutdown is complete
		s.cDone <- struct{}{}
	})
}
