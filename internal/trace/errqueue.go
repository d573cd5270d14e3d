// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/skua-project/skua/internal/logger"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	// oobBufSize is the size of the out-of-band buffer used for
	// receiving extended error messages.
	oobBufSize = 512
	// dataBufSize is the size of the data buffer used for receiving
	// messages.
	dataBufSize = 64
	// icmpUnreachablePort is the ICMP code for Destination Unreachable
	// "Port Unreachable" messages.
	icmpUnreachablePort = 3
	// minExtendedErrSize is the minimum size of the extended error
	// structure, see https://man7.org/linux/man-pages/man7/ip.7.html.
	minExtendedErrSize = 16
)

// icmpError is one ICMP error delivered through the socket error queue.
type icmpError struct {
	// remoteAddr is the router or target that generated the error.
	remoteAddr net.Addr
	// reached indicates a port-unreachable from the target, meaning
	// the route is complete.
	reached bool
}

// errQueueListener reads ICMP errors from the kernel error queue of a
// connected UDP socket. The socket must have IP_RECVERR enabled; no
// raw socket privileges are needed.
type errQueueListener struct {
	conn    net.Conn
	rawConn syscall.RawConn
	oobBuf  []byte
}

// newErrQueueListener attaches to the error queue of conn. The
// localPort is only informational; the error queue is already scoped
// to the socket.
func newErrQueueListener(conn net.Conn, _ int) (*errQueueListener, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("connection does not expose a raw syscall interface: %T", conn)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to get raw connection: %w", err)
	}

	return &errQueueListener{
		conn:    conn,
		rawConn: rc,
		oobBuf:  make([]byte, oobBufSize),
	}, nil
}

// Read blocks until an ICMP error arrives or the context's deadline
// passes. Unrelated messages on the queue are skipped.
func (l *errQueueListener) Read(ctx context.Context) (icmpError, error) {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return icmpError{}, ctx.Err()
		default:
		}

		pkt, err := l.recv(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return icmpError{}, context.DeadlineExceeded
			}
			log.DebugContext(ctx, "Skipping unusable error queue message", "error", err)
			continue
		}
		return *pkt, nil
	}
}

// recv performs a single Recvmsg(..., MSG_ERRQUEUE) and parses one
// ICMP error from the control messages.
func (l *errQueueListener) recv(ctx context.Context) (*icmpError, error) {
	deadline, ok := ctx.Deadline()
	if !ok || deadline.IsZero() {
		return nil, context.Canceled
	}
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	var pkt *icmpError
	var opErr error
	err := l.rawConn.Read(func(fd uintptr) bool {
		dataBuf := make([]byte, dataBufSize)
		_, oobn, _, from, rerr := unix.Recvmsg(int(fd), dataBuf, l.oobBuf, unix.MSG_ERRQUEUE)
		if rerr != nil {
			opErr = rerr
			return true
		}
		pkt, opErr = parseErrQueue(l.oobBuf[:oobn], from)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read from raw connection: %w", err)
	}
	if opErr == nil {
		return pkt, nil
	}

	// An empty error queue surfaces as EAGAIN; treat it like a
	// timeout so the caller keeps waiting until the deadline.
	if errors.Is(opErr, unix.EAGAIN) || errors.Is(opErr, unix.EWOULDBLOCK) {
		return nil, context.DeadlineExceeded
	}
	return nil, fmt.Errorf("failed to read ICMP error: %w", opErr)
}

// parseErrQueue decodes a SOL_IP/IP_RECVERR control message into an
// [icmpError]. Extended errors with other ICMP types are rejected.
func parseErrQueue(oob []byte, from unix.Sockaddr) (*icmpError, error) {
	cms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("failed to parse control messages: %w", err)
	}

	for _, cm := range cms {
		if cm.Header.Level != unix.SOL_IP || cm.Header.Type != unix.IP_RECVERR {
			continue
		}

		ee, err := newSockExtendedErr(cm.Data)
		if err != nil {
			return nil, err
		}

		timeExceeded := ee.Type == uint8(ipv4.ICMPTypeTimeExceeded)
		destUnreachable := ee.Type == uint8(ipv4.ICMPTypeDestinationUnreachable)
		if !timeExceeded && !destUnreachable {
			return nil, fmt.Errorf("unexpected ICMP type %d with code %d", ee.Type, ee.Code)
		}

		return &icmpError{
			remoteAddr: offenderAddr(cm.Data, from),
			reached:    destUnreachable && ee.Code == icmpUnreachablePort,
		}, nil
	}
	return nil, errors.New("no SOL_IP/IP_RECVERR message found")
}

// newSockExtendedErr converts the first 16 bytes of a control message
// into a [unix.SockExtendedErr].
func newSockExtendedErr(data []byte) (unix.SockExtendedErr, error) {
	if len(data) < minExtendedErrSize {
		return unix.SockExtendedErr{}, fmt.Errorf("extended error too short: %d bytes", len(data))
	}
	return unix.SockExtendedErr{
		Errno:  binary.LittleEndian.Uint32(data[0:4]),
		Origin: data[4],
		Type:   data[5],
		Code:   data[6],
		Info:   binary.LittleEndian.Uint32(data[8:12]),
		Data:   binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// offenderAddr extracts the address of the node that generated the
// ICMP error. The kernel appends the offender's sockaddr_in after the
// extended error structure; if it is absent, the message's source
// address is used instead.
func offenderAddr(data []byte, from unix.Sockaddr) net.Addr {
	const sockaddrInLen = 8
	if len(data) >= minExtendedErrSize+sockaddrInLen {
		sa := data[minExtendedErrSize:]
		if binary.LittleEndian.Uint16(sa[0:2]) == unix.AF_INET {
			ip := net.IPv4(sa[4], sa[5], sa[6], sa[7])
			if !ip.IsUnspecified() {
				return &net.IPAddr{IP: ip}
			}
		}
	}

	if sa, ok := from.(*unix.SockaddrInet4); ok {
		return &net.IPAddr{IP: net.IP(sa.Addr[:])}
	}
	return nil
}
