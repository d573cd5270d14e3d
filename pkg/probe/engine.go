// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skua-project/skua/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config is the startup configuration of the engine. It is read once
// and treated as immutable; sessions share nothing else.
type Config struct {
	// Timeout is the default per-attempt timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// Delay is the default pause between sequential attempts.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
	// MaxConcurrency caps the in-flight attempts across all sessions.
	MaxConcurrency int `json:"maxConcurrency" yaml:"maxConcurrency" mapstructure:"maxConcurrency"`
	// MaxHops is the default route discovery bound.
	MaxHops int `json:"maxHops" yaml:"maxHops" mapstructure:"maxHops"`
	// HopProbes is the default number of parallel probes per hop.
	HopProbes int `json:"hopProbes" yaml:"hopProbes" mapstructure:"hopProbes"`
	// DefaultCount is the default attempt count per session.
	DefaultCount int `json:"defaultCount" yaml:"defaultCount" mapstructure:"defaultCount"`
}

// Engine defaults, matching the conventional tools.
const (
	defaultTimeout        = 3 * time.Second
	defaultDelay          = 100 * time.Millisecond
	defaultMaxConcurrency = 64
	defaultMaxHops        = 30
	defaultHopProbes      = 3
	defaultCount          = 4
)

// Validate checks if the engine configuration is valid.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return ErrInvalidRequest{Field: "engine.timeout", Reason: "must not be negative"}
	}
	if c.MaxConcurrency < 0 {
		return ErrInvalidRequest{Field: "engine.maxConcurrency", Reason: "must not be negative"}
	}
	if c.MaxHops < 0 || c.MaxHops > maxHopLimit {
		return ErrInvalidRequest{Field: "engine.maxHops", Reason: "must be between 0 and 64"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Delay == 0 {
		c.Delay = defaultDelay
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.MaxHops == 0 {
		c.MaxHops = defaultMaxHops
	}
	if c.HopProbes == 0 {
		c.HopProbes = defaultHopProbes
	}
	if c.DefaultCount == 0 {
		c.DefaultCount = defaultCount
	}
	return c
}

// Prober executes the attempts of a single session over one transport.
// Implementations classify their own positive and negative signals;
// the engine enforces the timeout and discards stragglers.
type Prober interface {
	// Probe executes one attempt and returns its terminal outcome.
	Probe(ctx context.Context, a Attempt) Outcome
	// Close releases the session's transport resources.
	Close() error
}

// ProberFactory builds a Prober for one session. addr is the resolved
// target address for kinds that require one, nil otherwise.
type ProberFactory func(ctx context.Context, req Request, addr net.IP) (Prober, error)

// TraceConfig carries the parameters of one route discovery session.
type TraceConfig struct {
	Target       string
	Addr         net.IP
	MaxHops      int
	ProbesPerHop int
	Timeout      time.Duration
}

// RouteTracer discovers the route to a target hop by hop, emitting one
// hop per TTL in strictly ascending order.
type RouteTracer interface {
	Discover(ctx context.Context, cfg TraceConfig, adm Admission, emit func(Hop)) error
}

// Resolver resolves a host to its IP addresses. It exists to allow
// mocking DNS resolution in tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Engine schedules probe attempts, enforces per-attempt timeouts and
// the process-wide admission cap, and aggregates outcomes into results.
type Engine struct {
	cfg      Config
	probers  map[Kind]ProberFactory
	tracer   RouteTracer
	resolver Resolver
	gate     *gate
	metrics  metrics
	otel     oteltrace.Tracer
}

// NewEngine creates an engine with the given transports. rt may be nil
// if route discovery is not available.
func NewEngine(cfg Config, probers map[Kind]ProberFactory, rt RouteTracer) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		probers:  probers,
		tracer:   rt,
		resolver: net.DefaultResolver,
		gate:     newGate(cfg.MaxConcurrency),
		metrics:  newMetrics(),
		otel:     otel.Tracer("skua.probe.engine"),
	}
}

// Collectors returns the engine's prometheus metric collectors.
func (e *Engine) Collectors() []prometheus.Collector {
	return e.metrics.List()
}

// Kinds returns the probe kinds this engine can execute.
func (e *Engine) Kinds() []Kind {
	kinds := make([]Kind, 0, len(e.probers)+1)
	for k := range e.probers {
		kinds = append(kinds, k)
	}
	if e.tracer != nil {
		kinds = append(kinds, KindTrace)
	}
	return kinds
}

// Do executes the request and blocks until the session reaches a
// terminal state. A request that fails before any attempt is
// dispatched yields a Failed result alongside the error.
func (e *Engine) Do(ctx context.Context, req Request) (*Result, error) {
	events, err := e.Stream(ctx, req)
	if err != nil {
		now := time.Now().UTC()
		return &Result{
			Kind:       req.Kind,
			Target:     req.Target,
			Status:     StatusFailed,
			StartedAt:  now,
			FinishedAt: now,
		}, err
	}

	var res *Result
	for ev := range events {
		if ev.Type == EventResult {
			res = ev.Result
		}
	}
	return res, nil
}

// Stream validates the request and starts the session, returning its
// event stream. The stream carries one event per terminal outcome or
// hop, a final result event, and is then closed. Validation and
// resolution failures are returned synchronously; nothing is
// dispatched for them.
func (e *Engine) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	req = e.normalize(req)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Kind == KindTrace {
		if e.tracer == nil {
			return nil, ErrUnsupportedKind{Kind: req.Kind}
		}
	} else if _, ok := e.probers[req.Kind]; !ok {
		return nil, ErrUnsupportedKind{Kind: req.Kind}
	}

	var addr net.IP
	if needsResolution(req.Kind) {
		ip, err := e.resolve(ctx, req.Target)
		if err != nil {
			return nil, ErrResolve{Target: req.Target, Err: err}
		}
		addr = ip
	}

	events := make(chan Event, req.Count+req.MaxHops+1)
	go e.run(ctx, req, addr, events)
	return events, nil
}

// normalize fills a request's zero values with the engine defaults.
func (e *Engine) normalize(req Request) Request {
	if req.Count == 0 {
		switch req.Kind {
		case KindHTTP, KindDNS:
			req.Count = 1
		default:
			req.Count = e.cfg.DefaultCount
		}
	}
	if req.Timeout == 0 {
		req.Timeout = e.cfg.Timeout
	}
	if req.Delay == 0 {
		req.Delay = e.cfg.Delay
	}
	if req.MaxHops == 0 {
		req.MaxHops = e.cfg.MaxHops
	}
	if req.HopProbes == 0 {
		req.HopProbes = e.cfg.HopProbes
	}
	if req.Kind == KindHTTP && req.Method == "" {
		req.Method = "GET"
	}
	if req.Kind == KindDNS && req.QueryType == "" {
		req.QueryType = "A"
	}
	req.Method = strings.ToUpper(req.Method)
	req.QueryType = strings.ToUpper(req.QueryType)
	return req
}

func needsResolution(k Kind) bool {
	return k == KindEcho || k == KindTCP || k == KindTrace
}

// resolve looks up the target, preferring IPv4 addresses.
func (e *Engine) resolve(ctx context.Context, host string) (net.IP, error) {
	addrs, err := e.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return addrs[0].IP, nil
}

// run drives one session to its terminal state.
func (e *Engine) run(ctx context.Context, req Request, addr net.IP, events chan<- Event) {
	defer close(events)
	log := logger.FromContext(ctx)

	ctx, span := e.otel.Start(ctx, "probe.session", oteltrace.WithAttributes(
		attribute.String("probe.kind", req.Kind.String()),
		attribute.String("probe.target", req.Target),
		attribute.Int("probe.count", req.Count),
	))
	defer span.End()

	var addrStr string
	if addr != nil {
		addrStr = addr.String()
	}
	agg := newAggregator(req, addrStr)

	var status Status
	if req.Kind == KindTrace {
		status = e.runTrace(ctx, req, addr, agg, events)
	} else {
		status = e.runAttempts(ctx, req, addr, agg, events)
	}

	res := agg.Finalize(status)
	e.metrics.sessions.WithLabelValues(req.Kind.String(), string(res.Status)).Inc()
	if res.Status == StatusFailed {
		span.SetStatus(codes.Error, "session failed before dispatch")
	}
	log.DebugContext(ctx, "Probe session finished",
		"kind", req.Kind, "target", req.Target, "status", res.Status)

	events <- Event{Type: EventResult, Result: res}
}

// runAttempts dispatches the session's attempts to the prober of the
// request's kind. Per-attempt failures never abort the session.
func (e *Engine) runAttempts(ctx context.Context, req Request, addr net.IP, agg *aggregator, events chan<- Event) Status {
	log := logger.FromContext(ctx)

	prober, err := e.probers[req.Kind](ctx, req, addr)
	if err != nil {
		// Resource acquisition failed before the first attempt.
		log.ErrorContext(ctx, "Failed to set up prober", "kind", req.Kind, "error", err)
		return StatusFailed
	}
	defer func() { _ = prober.Close() }()

	if req.Kind.sequential() {
		return e.runSequential(ctx, req, addr, prober, agg, events)
	}
	return e.runConcurrent(ctx, req, addr, prober, agg, events)
}

func (e *Engine) runSequential(ctx context.Context, req Request, addr net.IP, p Prober, agg *aggregator, events chan<- Event) Status {
	for seq := 1; seq <= req.Count; seq++ {
		if ctx.Err() != nil {
			return StatusPartial
		}

		o, dispatched := e.dispatch(ctx, req, addr, p, seq, agg)
		if !dispatched {
			return StatusPartial
		}
		events <- Event{Type: EventOutcome, Outcome: &o}

		if seq < req.Count {
			select {
			case <-ctx.Done():
				return StatusPartial
			case <-time.After(req.Delay):
			}
		}
	}
	return StatusCompleted
}

func (e *Engine) runConcurrent(ctx context.Context, req Request, addr net.IP, p Prober, agg *aggregator, events chan<- Event) Status {
	var wg sync.WaitGroup
	var interrupted atomic.Bool

	for seq := 1; seq <= req.Count; seq++ {
		if ctx.Err() != nil {
			interrupted.Store(true)
			break
		}

		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			o, dispatched := e.dispatch(ctx, req, addr, p, seq, agg)
			if !dispatched {
				interrupted.Store(true)
				return
			}
			events <- Event{Type: EventOutcome, Outcome: &o}
		}(seq)
	}
	wg.Wait()

	if interrupted.Load() {
		return StatusPartial
	}
	return StatusCompleted
}

// dispatch acquires an admission slot, runs one attempt, and records
// its outcome. It reports false if the slot could not be acquired
// because the session was cancelled; such attempts were never
// dispatched and produce no outcome.
func (e *Engine) dispatch(ctx context.Context, req Request, addr net.IP, p Prober, seq int, agg *aggregator) (Outcome, bool) {
	if err := e.gate.Acquire(ctx); err != nil {
		return Outcome{}, false
	}
	e.metrics.inflight.Inc()
	defer func() {
		e.metrics.inflight.Dec()
		e.gate.Release()
	}()

	a := Attempt{
		Seq:     seq,
		Target:  req.Target,
		Addr:    addr,
		Port:    req.Port,
		Timeout: req.Timeout,
		SentAt:  time.Now(),
	}
	agg.Dispatched()

	o := e.attempt(ctx, p, a)
	agg.Record(o)
	e.metrics.recordOutcome(req.Kind, o)
	return o, true
}

// attempt runs the prober under the attempt's own timer. The timer is
// started at dispatch and does not extend on partial responses; a
// prober result racing with its expiry is discarded.
func (e *Engine) attempt(ctx context.Context, p Prober, a Attempt) Outcome {
	actx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	ch := make(chan Outcome, 1)
	go func() {
		ch <- p.Probe(actx, a)
	}()

	select {
	case o := <-ch:
		o.Seq = a.Seq
		return o
	case <-actx.Done():
		if ctx.Err() != nil {
			return Outcome{Seq: a.Seq, State: StateCancelled, Reason: "session cancelled"}
		}
		return Outcome{Seq: a.Seq, State: StateTimeout, Reason: "no response within " + a.Timeout.String()}
	}
}

// runTrace drives the route discovery state machine, forwarding hops
// to the aggregator and the event stream as they resolve.
func (e *Engine) runTrace(ctx context.Context, req Request, addr net.IP, agg *aggregator, events chan<- Event) Status {
	log := logger.FromContext(ctx)

	cfg := TraceConfig{
		Target:       req.Target,
		Addr:         addr,
		MaxHops:      req.MaxHops,
		ProbesPerHop: req.HopProbes,
		Timeout:      req.Timeout,
	}

	err := e.tracer.Discover(ctx, cfg, e.gate, func(h Hop) {
		agg.RecordHop(h)
		state := StateTimeout
		if h.Responded {
			state = StateSuccess
		}
		e.metrics.attempts.WithLabelValues(req.Kind.String(), string(state)).Inc()
		events <- Event{Type: EventHop, Hop: &h}
	})

	switch {
	case err == nil:
		return StatusCompleted
	case ctx.Err() != nil:
		return StatusPartial
	default:
		log.ErrorContext(ctx, "Route discovery failed", "target", req.Target, "error", err)
		if len(agg.Snapshot().Hops) > 0 {
			return StatusPartial
		}
		return StatusFailed
	}
}
