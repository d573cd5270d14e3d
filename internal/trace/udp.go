// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/skua-project/skua/internal/helper"
)

// udpBasePort is the conventional traceroute destination port. Ports
// in this range are almost never bound, so the target answers with an
// ICMP port-unreachable, which marks it as reached.
const udpBasePort = 33434

// probeUDP sends a single UDP datagram with the given TTL and waits
// for the ICMP error the kernel queues on the sending socket. A TTL
// expiry names the router at that hop; a port-unreachable from the
// target means the route is complete.
func probeUDP(ctx context.Context, addr net.IP, ttl int, timeout time.Duration) (hopReply, error) {
	var conn net.Conn
	var localPort int
	// The random local port can collide with another probe's socket,
	// so the dial is retried on a fresh port.
	dial := helper.Retry(func(ctx context.Context) error {
		localPort = randomPort()
		c, err := dialUDP(ctx, addr, localPort, ttl, timeout)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, helper.RetryConfig{Count: 2, Delay: 10 * time.Millisecond})

	if err := dial(ctx); err != nil {
		return hopReply{}, fmt.Errorf("failed to dial UDP probe socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	listener, err := newErrQueueListener(conn, localPort)
	if err != nil {
		return hopReply{}, fmt.Errorf("failed to attach to the socket error queue: %w", err)
	}

	// A single byte is enough to trigger the ICMP error response.
	if _, err := conn.Write([]byte{0}); err != nil {
		return hopReply{}, fmt.Errorf("failed to send UDP probe: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	pkt, err := listener.Read(rctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		// No ICMP error arrived; the hop did not answer.
		return hopReply{responded: false}, nil
	case err != nil:
		return hopReply{}, err
	default:
		return hopReply{
			peer:      pkt.remoteAddr,
			reached:   pkt.reached,
			responded: true,
			latency:   time.Since(start),
		}, nil
	}
}

// dialUDP opens a connected UDP socket with the probe's TTL and the
// error queue enabled. The socket is bound to a random local port so
// the kernel routes the matching ICMP errors back to it.
func dialUDP(ctx context.Context, addr net.IP, localPort, ttl int, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		LocalAddr: &net.UDPAddr{Port: localPort},
		Timeout:   timeout,
		ControlContext: func(_ context.Context, _, _ string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = errors.Join(
					unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TTL, ttl), // #nosec G115
					unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_RECVERR, 1),   // #nosec G115
				)
			}); err != nil {
				return err
			}
			return opErr
		},
	}

	target := net.JoinHostPort(addr.String(), strconv.Itoa(udpBasePort+ttl-1))
	return dialer.DialContext(ctx, "udp", target)
}
