// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package trace implements hop-by-hop route discovery over UDP probes.
// It raises the probe TTL one step at a time and reads the ICMP errors
// the kernel queues for the sending socket, so no raw socket and no
// elevated privileges are required.
package trace

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/pkg/probe"
)

// hopReply is the answer of a single TTL-limited probe.
type hopReply struct {
	// peer is the router that answered, nil if none did.
	peer net.Addr
	// reached indicates the answer came from the target itself.
	reached bool
	// responded is false when the probe timed out.
	responded bool
	latency   time.Duration
}

// probeFunc sends one TTL-limited probe and waits for its ICMP answer.
// It is a function so tests can script the network.
type probeFunc func(ctx context.Context, addr net.IP, ttl int, timeout time.Duration) (hopReply, error)

// Discoverer walks the route to a target TTL by TTL. It implements
// [probe.RouteTracer].
type Discoverer struct {
	probe  probeFunc
	lookup func(addr net.Addr) string
}

// New creates a Discoverer using the UDP error-queue transport.
func New() *Discoverer {
	return &Discoverer{
		probe:  probeUDP,
		lookup: newPTRCache().resolve,
	}
}

// Discover probes each TTL in ascending order and emits exactly one
// hop per TTL. For each TTL it launches the configured number of
// probes in parallel; the first answer resolves the hop and the
// stragglers are discarded. Discovery ends when the target answers,
// the TTL bound is exhausted, or the context is cancelled.
func (d *Discoverer) Discover(ctx context.Context, cfg probe.TraceConfig, adm probe.Admission, emit func(probe.Hop)) error {
	log := logger.FromContext(ctx)
	ctx, span := otel.Tracer("skua.trace").Start(ctx, "trace.discover", oteltrace.WithAttributes(
		attribute.String("trace.target", cfg.Target),
		attribute.Int("trace.max_hops", cfg.MaxHops),
	))
	defer span.End()

	for ttl := 1; ttl <= cfg.MaxHops; ttl++ {
		hop, err := d.hop(ctx, cfg, adm, ttl)
		if err != nil {
			return err
		}

		log.DebugContext(ctx, "Resolved hop",
			"ttl", hop.TTL, "addr", hop.Addr, "reached", hop.Reached)
		emit(hop)

		if hop.Reached {
			return nil
		}
	}
	// Exhausting the hop bound without reaching the target is a
	// bounded terminal state, not a failure.
	return nil
}

// hop resolves a single TTL. All probes for the TTL run concurrently,
// each under its own admission slot.
func (d *Discoverer) hop(ctx context.Context, cfg probe.TraceConfig, adm probe.Admission, ttl int) (probe.Hop, error) {
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		r   hopReply
		err error
	}
	// Buffered so stragglers never block after the winner returned.
	results := make(chan outcome, cfg.ProbesPerHop)

	var wg sync.WaitGroup
	for i := 0; i < cfg.ProbesPerHop; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := adm.Acquire(hctx); err != nil {
				results <- outcome{err: err}
				return
			}
			defer adm.Release()

			r, err := d.probe(hctx, cfg.Addr, ttl, cfg.Timeout)
			results <- outcome{r: r, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var errs error
	timedOut := 0
	for o := range results {
		switch {
		case o.err != nil:
			errs = errors.Join(errs, o.err)
		case o.r.responded:
			cancel()
			return probe.Hop{
				TTL:       ttl,
				Addr:      addrString(o.r.peer),
				Name:      d.lookup(o.r.peer),
				Latency:   o.r.latency,
				Responded: true,
				Reached:   o.r.reached,
			}, nil
		default:
			timedOut++
		}
	}

	if err := ctx.Err(); err != nil {
		return probe.Hop{}, err
	}
	if timedOut > 0 {
		// Every probe timed out; the hop exists but stays silent.
		return probe.Hop{TTL: ttl, Latency: cfg.Timeout, Responded: false}, nil
	}
	return probe.Hop{}, errs
}

// addrString extracts the bare IP from a hop's answer address.
func addrString(addr net.Addr) string {
	if ip := ipFromAddr(addr); ip != nil {
		return ip.String()
	}
	if addr != nil {
		return addr.String()
	}
	return ""
}
