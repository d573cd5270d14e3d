// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"slices"
	"sync"
	"time"
)

// aggregator accumulates the outcomes and hops of one session into a
// running Result. It re-establishes ordering by sequence number and
// TTL, since arrival order is unconstrained. All methods are safe for
// concurrent use, so streaming consumers can snapshot while producers
// record.
type aggregator struct {
	mu   sync.Mutex
	res  Result
	hops map[int]Hop
	// dispatched counts attempts handed to a transport. The session is
	// only Completed if each of them reached a terminal outcome.
	dispatched int
}

func newAggregator(req Request, addr string) *aggregator {
	return &aggregator{
		res: Result{
			Kind:      req.Kind,
			Target:    req.Target,
			Addr:      addr,
			StartedAt: time.Now().UTC(),
		},
		hops: make(map[int]Hop),
	}
}

// Dispatched records that an attempt was handed to a transport.
func (a *aggregator) Dispatched() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatched++
}

// Record stores the terminal outcome of one attempt.
func (a *aggregator) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res.Outcomes = append(a.res.Outcomes, o)
}

// RecordHop stores a resolved or timed-out hop. A hop's TTL is unique
// within a session; a straggler arriving for an already recorded TTL
// is discarded, not treated as an error.
func (a *aggregator) RecordHop(h Hop) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.hops[h.TTL]; ok {
		return
	}
	a.hops[h.TTL] = h
	a.dispatched++
}

// Snapshot returns a copy of the running result with up-to-date
// statistics. It never blocks producers for longer than the copy.
func (a *aggregator) Snapshot() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.build()
}

// Finalize closes the session with the given status and returns the
// final result.
func (a *aggregator) Finalize(status Status) *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := a.build()
	res.Status = status
	if status == StatusCompleted && len(res.Outcomes)+len(res.Hops) < a.dispatched {
		// Not every dispatched attempt reached a terminal outcome.
		res.Status = StatusPartial
	}
	res.FinishedAt = time.Now().UTC()
	return &res
}

// build assembles a result copy; the caller must hold the lock.
func (a *aggregator) build() Result {
	res := a.res
	res.Outcomes = slices.Clone(a.res.Outcomes)
	slices.SortFunc(res.Outcomes, func(x, y Outcome) int {
		return x.Seq - y.Seq
	})

	if len(a.hops) > 0 {
		res.Hops = make([]Hop, 0, len(a.hops))
		for _, h := range a.hops {
			res.Hops = append(res.Hops, h)
		}
		slices.SortFunc(res.Hops, func(x, y Hop) int {
			return x.TTL - y.TTL
		})
	}

	res.Stats = a.stats(res)
	return res
}

// stats computes the summary statistics over the collected outcomes
// or hops. Latency figures consider successful attempts only; the loss
// ratio counts timed-out and unreachable attempts against everything
// dispatched.
func (a *aggregator) stats(res Result) Stats {
	var s Stats
	var latencies []time.Duration

	if len(res.Hops) > 0 {
		s.Sent = a.dispatched
		for _, h := range res.Hops {
			if h.Responded {
				s.Received++
				latencies = append(latencies, h.Latency)
			}
		}
	} else {
		s.Sent = a.dispatched
		for _, o := range res.Outcomes {
			if o.State == StateSuccess {
				s.Received++
				latencies = append(latencies, o.Latency)
			}
			if o.lost() {
				s.Loss += 1
			}
		}
	}

	if s.Sent > 0 && len(res.Hops) == 0 {
		s.Loss /= float64(s.Sent)
	} else if len(res.Hops) > 0 && s.Sent > 0 {
		s.Loss = float64(s.Sent-s.Received) / float64(s.Sent)
	}

	if len(latencies) == 0 {
		return s
	}

	s.Min = latencies[0]
	s.Max = latencies[0]
	var sum time.Duration
	for _, l := range latencies {
		sum += l
		if l < s.Min {
			s.Min = l
		}
		if l > s.Max {
			s.Max = l
		}
	}
	s.Avg = sum / time.Duration(len(latencies))

	// Jitter is the mean absolute difference between successive
	// round trip times.
	if len(latencies) > 1 {
		var diff time.Duration
		for i := 1; i < len(latencies); i++ {
			d := latencies[i] - latencies[i-1]
			if d < 0 {
				d = -d
			}
			diff += d
		}
		s.Jitter = diff / time.Duration(len(latencies)-1)
	}

	return s
}
