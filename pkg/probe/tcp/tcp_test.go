// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/skua-project/skua/pkg/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// listen opens a local listener and returns its address and port.
func listen(t *testing.T) (net.IP, int, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP, addr.Port, ln
}

func TestProber_Probe_OpenPort(t *testing.T) {
	ip, port, ln := listen(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	p := New()
	o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Addr: ip, Port: port})

	assert.Equal(t, probe.StateSuccess, o.State)
	assert.Greater(t, o.Latency, time.Duration(0))
	assert.NotEmpty(t, o.Peer)
}

func TestProber_Probe_ClosedPort(t *testing.T) {
	ip, port, ln := listen(t)
	// Close right away so the port refuses connections.
	require.NoError(t, ln.Close())

	p := New()
	o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Addr: ip, Port: port})

	// A refusal is a terminal negative signal, not a timeout.
	assert.Equal(t, probe.StateUnreachable, o.State)
	assert.Contains(t, o.Reason, "refused")
}

func TestProber_Probe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ip, port, ln := listen(t)
	defer ln.Close()

	p := New()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: ip, Port: port})
	assert.Equal(t, probe.StateCancelled, o.State)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want probe.State
	}{
		{name: "connection refused", err: &net.OpError{Op: "dial", Err: unix.ECONNREFUSED}, want: probe.StateUnreachable},
		{name: "host unreachable", err: &net.OpError{Op: "dial", Err: unix.EHOSTUNREACH}, want: probe.StateUnreachable},
		{name: "network unreachable", err: &net.OpError{Op: "dial", Err: unix.ENETUNREACH}, want: probe.StateUnreachable},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: probe.StateTimeout},
		{name: "cancelled", err: context.Canceled, want: probe.StateCancelled},
		{name: "anything else", err: assert.AnError, want: probe.StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := classify(tt.err)
			assert.Equal(t, tt.want, o.State)
		})
	}
}
