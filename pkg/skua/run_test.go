// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package skua

import (
	"context"
	"testing"
	"time"

	"github.com/skua-project/skua/pkg/api"
	"github.com/skua-project/skua/pkg/config"
	"github.com/stretchr/testify/require"
)

// TestSkua_Run_FullComponentStart tests that the Run method starts the
// API and telemetry and that shutdown completes after cancellation.
func TestSkua_Run_FullComponentStart(t *testing.T) {
	c := &config.Config{
		Api: api.Config{ListenAddress: "localhost:0"},
	}

	s := New(c, "test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Log("Running skua for 100ms")
	<-time.After(100 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrFinalShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("skua did not shut down in time")
	}
}

// TestSkua_Run_ComponentError tests that Run shuts down when a
// component reports a non-recoverable error.
func TestSkua_Run_ComponentError(t *testing.T) {
	c := &config.Config{
		// A malformed listen address makes the API fail on startup.
		Api: api.Config{ListenAddress: "localhost:99999"},
	}

	s := New(c, "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrFinalShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("skua did not shut down in time")
	}
}
