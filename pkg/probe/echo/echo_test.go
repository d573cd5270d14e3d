// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package echo

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/skua-project/skua/pkg/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

type inbound struct {
	b   []byte
	src net.Addr
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// fakeConn is an in-memory packetConn. Writes invoke onWrite so tests
// can inject the matching answer; reads block until a packet arrives
// or the read deadline passes.
type fakeConn struct {
	mu       sync.Mutex
	deadline time.Time
	in       chan inbound
	onWrite  func(b []byte, dst net.Addr)
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan inbound, 16)}
}

func (f *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	f.mu.Lock()
	wait := time.Until(f.deadline)
	f.mu.Unlock()

	select {
	case pkt := <-f.in:
		n := copy(b, pkt.b)
		return n, pkt.src, nil
	case <-time.After(wait):
		return 0, nil, timeoutErr{}
	}
}

func (f *fakeConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	if f.onWrite != nil {
		f.onWrite(b, dst)
	}
	return len(b), nil
}

func (f *fakeConn) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	f.deadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error { return nil }

func newTestProber(t *testing.T, conn packetConn) *Prober {
	t.Helper()
	p := &Prober{
		conn:    conn,
		id:      7,
		raw:     true,
		pending: make(map[int]chan reply),
		done:    make(chan struct{}),
	}
	go p.read(context.Background())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func echoReply(t *testing.T, id, seq int) []byte {
	t.Helper()
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("skua network probe")},
	}
	b, err := msg.Marshal(nil)
	require.NoError(t, err)
	return b
}

func unreachable(t *testing.T, seq, code int) []byte {
	t.Helper()
	return unreachableFor(t, 7, seq, code)
}

func unreachableFor(t *testing.T, id, seq, code int) []byte {
	t.Helper()
	inner := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: seq},
	}
	quoted, err := inner.Marshal(nil)
	require.NoError(t, err)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: code,
		Body: &icmp.DstUnreach{Data: append(make([]byte, ipv4.HeaderLen), quoted...)},
	}
	b, err := msg.Marshal(nil)
	require.NoError(t, err)
	return b
}

func TestProber_Probe_Reply(t *testing.T) {
	conn := newFakeConn()
	peer := &net.IPAddr{IP: net.IPv4(192, 0, 2, 1)}
	conn.onWrite = func(_ []byte, _ net.Addr) {
		conn.in <- inbound{b: echoReply(t, 7, 1), src: peer}
	}
	p := newTestProber(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: peer.IP})

	assert.Equal(t, probe.StateSuccess, o.State)
	assert.Equal(t, "192.0.2.1", o.Peer)
	assert.Greater(t, o.Latency, time.Duration(0))
}

func TestProber_Probe_Unreachable(t *testing.T) {
	conn := newFakeConn()
	router := &net.IPAddr{IP: net.IPv4(10, 0, 0, 1)}
	conn.onWrite = func(_ []byte, _ net.Addr) {
		conn.in <- inbound{b: unreachable(t, 1, 1), src: router}
	}
	p := newTestProber(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: net.IPv4(192, 0, 2, 1)})

	assert.Equal(t, probe.StateUnreachable, o.State)
	assert.Equal(t, "10.0.0.1", o.Peer)
	assert.Contains(t, o.Reason, "destination unreachable")
}

func TestProber_Probe_Timeout(t *testing.T) {
	p := newTestProber(t, newFakeConn())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: net.IPv4(192, 0, 2, 1)})

	assert.Equal(t, probe.StateTimeout, o.State)
}

func TestProber_Probe_IgnoresUnrelatedTraffic(t *testing.T) {
	conn := newFakeConn()
	peer := &net.IPAddr{IP: net.IPv4(192, 0, 2, 1)}
	conn.onWrite = func(_ []byte, _ net.Addr) {
		// A straggler for a finished attempt, a reply belonging to
		// another process, then the real answer.
		conn.in <- inbound{b: echoReply(t, 7, 99), src: peer}
		conn.in <- inbound{b: echoReply(t, 42, 1), src: peer}
		conn.in <- inbound{b: echoReply(t, 7, 1), src: peer}
	}
	p := newTestProber(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: peer.IP})

	assert.Equal(t, probe.StateSuccess, o.State)
}

func TestProber_RawModeIsolatesConcurrentSessions(t *testing.T) {
	// Two raw-mode sessions share the host's inbound echo replies but
	// must only ever accept replies carrying their own identifier.
	peer := &net.IPAddr{IP: net.IPv4(192, 0, 2, 1)}

	connA := newFakeConn()
	pA := newTestProber(t, connA)
	connB := newFakeConn()
	pB := &Prober{
		conn:    connB,
		id:      9,
		raw:     true,
		pending: make(map[int]chan reply),
		done:    make(chan struct{}),
	}
	go pB.read(context.Background())
	t.Cleanup(func() { _ = pB.Close() })

	// Session A only ever sees session B's reply for the same low
	// sequence number; it must not be accepted.
	connA.onWrite = func(_ []byte, _ net.Addr) {
		connA.in <- inbound{b: echoReply(t, pB.id, 1), src: peer}
	}
	connB.onWrite = func(_ []byte, _ net.Addr) {
		connB.in <- inbound{b: echoReply(t, pB.id, 1), src: peer}
	}

	ctxA, cancelA := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelA()
	oA := pA.Probe(ctxA, probe.Attempt{Seq: 1, Addr: peer.IP})
	assert.Equal(t, probe.StateTimeout, oA.State)

	ctxB, cancelB := context.WithTimeout(context.Background(), time.Second)
	defer cancelB()
	oB := pB.Probe(ctxB, probe.Attempt{Seq: 1, Addr: peer.IP})
	assert.Equal(t, probe.StateSuccess, oB.State)
}

func TestProber_RawModeDropsReplyFromForeignPeer(t *testing.T) {
	conn := newFakeConn()
	target := net.IPv4(192, 0, 2, 1)
	stranger := &net.IPAddr{IP: net.IPv4(203, 0, 113, 9)}
	conn.onWrite = func(_ []byte, _ net.Addr) {
		// Matching identifier and sequence, wrong source.
		conn.in <- inbound{b: echoReply(t, 7, 1), src: stranger}
	}
	p := &Prober{
		conn:    conn,
		id:      7,
		raw:     true,
		target:  target,
		pending: make(map[int]chan reply),
		done:    make(chan struct{}),
	}
	go p.read(context.Background())
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: target})

	assert.Equal(t, probe.StateTimeout, o.State)
}

func TestProber_RawModeDropsErrorQuotingForeignIdentifier(t *testing.T) {
	conn := newFakeConn()
	router := &net.IPAddr{IP: net.IPv4(10, 0, 0, 1)}
	conn.onWrite = func(_ []byte, _ net.Addr) {
		conn.in <- inbound{b: unreachableFor(t, 42, 1, 1), src: router}
	}
	p := newTestProber(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	o := p.Probe(ctx, probe.Attempt{Seq: 1, Addr: net.IPv4(192, 0, 2, 1)})

	assert.Equal(t, probe.StateTimeout, o.State)
}

func TestProber_ProbeAfterClose(t *testing.T) {
	p := newTestProber(t, newFakeConn())
	require.NoError(t, p.Close())

	o := p.Probe(context.Background(), probe.Attempt{Seq: 1})
	assert.Equal(t, probe.StateError, o.State)
}

func TestEmbeddedEcho(t *testing.T) {
	_, _, err := embeddedEcho([]byte{0x45, 0x00})
	assert.Error(t, err)
}
