// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package echo implements ICMP echo probes. It prefers a raw ICMP
// socket and transparently falls back to an unprivileged datagram
// socket when NET_RAW is not available.
package echo

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/pkg/probe"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	protocolICMP = 1
	mtuSize      = 1500
)

// packetConn is the subset of [icmp.PacketConn] the prober needs. It
// exists to allow feeding crafted packets in tests.
type packetConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// reply is a demultiplexed answer to one outstanding echo request.
type reply struct {
	peer        net.Addr
	unreachable bool
	code        int
}

// Prober sends ICMP echo requests over a shared socket and correlates
// answers to outstanding attempts by sequence number. Answers for
// sequence numbers with no outstanding attempt are discarded.
type Prober struct {
	conn packetConn
	// id is the echo identifier, drawn at random per session. A raw
	// socket sees every echo reply reaching the host, so the identifier
	// keeps concurrent sessions apart. Unprivileged datagram sockets
	// have their identifier rewritten by the kernel, so correlation
	// relies on the sequence number alone there.
	id  int
	raw bool
	// target is the session's resolved address. Raw-mode echo replies
	// from any other peer are discarded.
	target net.IP

	mu      sync.Mutex
	pending map[int]chan reply
	closed  bool
	done    chan struct{}
}

// NewFactory returns the [probe.ProberFactory] for echo probes.
func NewFactory() probe.ProberFactory {
	return func(ctx context.Context, _ probe.Request, addr net.IP) (probe.Prober, error) {
		return New(ctx, addr)
	}
}

// New opens an ICMP socket for one session targeting addr.
func New(ctx context.Context, addr net.IP) (*Prober, error) {
	conn, raw, err := listen()
	if err != nil {
		return nil, err
	}

	p := &Prober{
		conn:    conn,
		id:      rand.IntN(1 << 16),
		raw:     raw,
		target:  addr,
		pending: make(map[int]chan reply),
		done:    make(chan struct{}),
	}
	go p.read(ctx)
	return p, nil
}

// listen opens a raw ICMP socket, falling back to an unprivileged
// datagram socket on EPERM.
func listen() (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err == nil {
		return conn, true, nil
	}
	if !errors.Is(err, unix.EPERM) {
		return nil, false, fmt.Errorf("failed to open ICMP socket: %w", err)
	}

	conn, err = icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil, false, fmt.Errorf("failed to open unprivileged ICMP socket: %w", err)
	}
	return conn, false, nil
}

// Probe sends one echo request and waits for its answer or the
// attempt's deadline.
func (p *Prober) Probe(ctx context.Context, a probe.Attempt) probe.Outcome {
	ch := p.register(a.Seq)
	if ch == nil {
		return probe.Outcome{State: probe.StateError, Reason: "socket closed"}
	}
	defer p.unregister(a.Seq)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  a.Seq,
			Data: []byte("skua network probe"),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return probe.Outcome{State: probe.StateError, Reason: err.Error()}
	}

	sent := time.Now()
	if _, err := p.conn.WriteTo(wire, p.dst(a.Addr)); err != nil {
		return probe.Outcome{State: probe.StateError, Reason: err.Error()}
	}

	select {
	case <-ctx.Done():
		return probe.Outcome{State: probe.StateTimeout, Reason: "no reply"}
	case r := <-ch:
		o := probe.Outcome{
			State:   probe.StateSuccess,
			Latency: time.Since(sent),
			Peer:    peerString(r.peer),
		}
		if r.unreachable {
			o.State = probe.StateUnreachable
			o.Reason = fmt.Sprintf("destination unreachable (code %d)", r.code)
		}
		return o
	}
}

// dst returns the destination address in the form the socket expects.
func (p *Prober) dst(ip net.IP) net.Addr {
	if p.raw {
		return &net.IPAddr{IP: ip}
	}
	return &net.UDPAddr{IP: ip}
}

// read receives ICMP messages and routes them to the attempt that owns
// their sequence number.
func (p *Prober) read(ctx context.Context) {
	log := logger.FromContext(ctx)
	buf := make([]byte, mtuSize)

	for {
		select {
		case <-p.done:
			return
		default:
		}

		// Wake up periodically so a Close is noticed.
		if err := p.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return
		}
		n, src, err := p.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return
		}

		seq, r, err := p.parse(buf[:n], src)
		if err != nil {
			log.DebugContext(ctx, "Ignoring unrelated ICMP message", "error", err)
			continue
		}
		p.deliver(seq, r)
	}
}

// parse extracts the sequence number and reply classification from a
// received ICMP message. Messages for other identifiers or of
// unrelated types yield an error.
func (p *Prober) parse(b []byte, src net.Addr) (int, reply, error) {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil {
		return 0, reply{}, fmt.Errorf("failed to parse ICMP message: %w", err)
	}

	switch body := msg.Body.(type) {
	case *icmp.Echo:
		if msg.Type != ipv4.ICMPTypeEchoReply {
			return 0, reply{}, fmt.Errorf("unexpected echo type: %v", msg.Type)
		}
		if p.raw && body.ID != p.id {
			return 0, reply{}, fmt.Errorf("echo reply for foreign identifier %d", body.ID)
		}
		if p.raw && p.target != nil && !srcIP(src).Equal(p.target) {
			return 0, reply{}, fmt.Errorf("echo reply from foreign peer %s", peerString(src))
		}
		return body.Seq, reply{peer: src}, nil

	case *icmp.DstUnreach:
		// The offending echo request is embedded after the IP header.
		id, seq, err := embeddedEcho(body.Data)
		if err != nil {
			return 0, reply{}, err
		}
		if p.raw && id != p.id {
			return 0, reply{}, fmt.Errorf("icmp error quoting foreign identifier %d", id)
		}
		return seq, reply{peer: src, unreachable: true, code: msg.Code}, nil

	default:
		return 0, reply{}, fmt.Errorf("unexpected ICMP message type: %v", msg.Type)
	}
}

// embeddedEcho parses the echo request quoted in an ICMP error payload
// and returns its identifier and sequence number.
func embeddedEcho(data []byte) (id, seq int, err error) {
	if len(data) < ipv4.HeaderLen {
		return 0, 0, fmt.Errorf("icmp error payload too short: %d bytes", len(data))
	}
	inner, err := icmp.ParseMessage(protocolICMP, data[ipv4.HeaderLen:])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse quoted echo request: %w", err)
	}
	echo, ok := inner.Body.(*icmp.Echo)
	if !ok {
		return 0, 0, fmt.Errorf("quoted message is not an echo request")
	}
	return echo.ID, echo.Seq, nil
}

func (p *Prober) register(seq int) chan reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	ch := make(chan reply, 1)
	p.pending[seq] = ch
	return ch
}

func (p *Prober) unregister(seq int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, seq)
}

// deliver hands a reply to its attempt. A reply whose sequence number
// has no outstanding attempt is a straggler and dropped here.
func (p *Prober) deliver(seq int, r reply) {
	p.mu.Lock()
	ch, ok := p.pending[seq]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r:
	default:
	}
}

// Close shuts down the reader and releases the socket.
func (p *Prober) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()
	return p.conn.Close()
}

// srcIP extracts the bare IP from a received packet's source address.
func srcIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPAddr:
		return v.IP
	case *net.UDPAddr:
		return v.IP
	default:
		return nil
	}
}

func peerString(a net.Addr) string {
	if a == nil {
		return ""
	}
	switch v := a.(type) {
	case *net.IPAddr:
		return v.IP.String()
	case *net.UDPAddr:
		return v.IP.String()
	default:
		return a.String()
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
