// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/pkg/probe"
)

const (
	// wsWriteTimeout bounds a single frame write.
	wsWriteTimeout = 10 * time.Second
	// wsSendBuffer is the per-connection outbound queue. Sessions
	// stall when a slow client falls this far behind.
	wsSendBuffer = 64
)

// wsRequest is an inbound websocket message. Type selects the probe
// kind; Data carries the request fields.
type wsRequest struct {
	Type string    `json:"type"`
	Data probeBody `json:"data"`
}

// wsEvent is an outbound websocket message, one per probe event.
type wsEvent struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// wsKinds maps inbound message types to probe kinds. The REST route
// names are accepted alongside the engine's kind names.
var wsKinds = map[string]probe.Kind{
	"ping":       probe.KindEcho,
	"echo":       probe.KindEcho,
	"tcping":     probe.KindTCP,
	"tcp":        probe.KindTCP,
	"website":    probe.KindHTTP,
	"http":       probe.KindHTTP,
	"traceroute": probe.KindTrace,
	"trace":      probe.KindTrace,
	"dns":        probe.KindDNS,
}

// handleWS upgrades the connection and streams probe events for every
// request the client sends. Sessions run concurrently per connection
// and die with it.
func (a *api) handleWS(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	upgrader := websocket.Upgrader{
		CheckOrigin: a.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "Failed to upgrade websocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan wsEvent, wsSendBuffer)
	writerDone := make(chan struct{})

	// Single writer; gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for ev := range out {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.DebugContext(ctx, "Failed to write websocket event", "error", err)
				cancel()
				return
			}
		}
	}()

	var sessions sync.WaitGroup
	for {
		var msg wsRequest
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		kind, ok := wsKinds[msg.Type]
		if !ok {
			a.sendEvent(ctx, out, wsEvent{Type: "error", Error: fmt.Sprintf("unknown message type %q", msg.Type)})
			continue
		}

		req, err := msg.Data.toRequest(kind)
		if err != nil {
			a.sendEvent(ctx, out, wsEvent{Type: "error", Error: err.Error()})
			continue
		}

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			a.streamProbe(ctx, req, out)
		}()
	}

	cancel()
	sessions.Wait()
	close(out)
	<-writerDone
}

// streamProbe forwards one session's events to the connection.
func (a *api) streamProbe(ctx context.Context, req probe.Request, out chan<- wsEvent) {
	events, err := a.engine.Stream(ctx, req)
	if err != nil {
		a.sendEvent(ctx, out, wsEvent{Type: "error", Error: err.Error()})
		return
	}

	for ev := range events {
		var msg wsEvent
		switch ev.Type {
		case probe.EventOutcome:
			msg = wsEvent{Type: "outcome", Data: ev.Outcome}
		case probe.EventHop:
			msg = wsEvent{Type: "hop", Data: ev.Hop}
		case probe.EventResult:
			msg = wsEvent{Type: "result", Data: ev.Result}
		default:
			continue
		}
		a.sendEvent(ctx, out, msg)
	}
}

// sendEvent enqueues an event unless the connection is gone.
func (a *api) sendEvent(ctx context.Context, out chan<- wsEvent, ev wsEvent) {
	ev.Timestamp = time.Now().UTC()
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// checkOrigin allows any origin unless the configuration restricts
// them.
func (a *api) checkOrigin(r *http.Request) bool {
	if len(a.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(a.config.AllowedOrigins, r.Header.Get("Origin"))
}
