// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements TCP connect probes. An attempt succeeds when
// the three-way handshake completes; a refusal is an explicit negative
// signal and distinct from a timeout.
package tcp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/skua-project/skua/pkg/probe"
	"golang.org/x/sys/unix"
)

// Prober dials the target once per attempt and closes the connection
// immediately; no payload is exchanged.
type Prober struct {
	dialer *net.Dialer
}

// NewFactory returns the [probe.ProberFactory] for TCP probes.
func NewFactory() probe.ProberFactory {
	return func(_ context.Context, _ probe.Request, _ net.IP) (probe.Prober, error) {
		return New(), nil
	}
}

// New creates a TCP prober.
func New() *Prober {
	return &Prober{dialer: &net.Dialer{}}
}

// Probe establishes one TCP connection to the attempt's address and
// port, measuring the handshake duration.
func (p *Prober) Probe(ctx context.Context, a probe.Attempt) probe.Outcome {
	hostport := net.JoinHostPort(a.Addr.String(), strconv.Itoa(a.Port))

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", hostport)
	latency := time.Since(start)

	if err != nil {
		return classify(err)
	}

	peer := conn.RemoteAddr().String()
	_ = conn.Close()
	return probe.Outcome{
		State:   probe.StateSuccess,
		Latency: latency,
		Peer:    peer,
	}
}

// classify maps a dial error to its outcome state. Refusals and
// unreachable networks are negative signals; everything without an
// answer is a timeout.
func classify(err error) probe.Outcome {
	switch {
	case errors.Is(err, unix.ECONNREFUSED),
		errors.Is(err, unix.ECONNRESET),
		errors.Is(err, unix.EHOSTUNREACH),
		errors.Is(err, unix.ENETUNREACH):
		return probe.Outcome{State: probe.StateUnreachable, Reason: reason(err)}
	case errors.Is(err, context.Canceled):
		return probe.Outcome{State: probe.StateCancelled, Reason: "session cancelled"}
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return probe.Outcome{State: probe.StateTimeout, Reason: "connect timed out"}
	default:
		return probe.Outcome{State: probe.StateError, Reason: reason(err)}
	}
}

// reason unwraps the dial error to its cause, dropping the
// "dial tcp addr:" prefix the net package adds.
func reason(err error) string {
	var operr *net.OpError
	if errors.As(err, &operr) && operr.Err != nil {
		return operr.Err.Error()
	}
	return err.Error()
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Close implements [probe.Prober]. The prober holds no resources
// between attempts.
func (p *Prober) Close() error { return nil }
