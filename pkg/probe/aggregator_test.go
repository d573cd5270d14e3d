// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_OrdersOutcomesBySeq(t *testing.T) {
	agg := newAggregator(Request{Kind: KindEcho, Target: "example.com"}, "192.0.2.1")

	// Outcomes arrive out of order; the result must not.
	for _, seq := range []int{3, 1, 2} {
		agg.Dispatched()
		agg.Record(Outcome{Seq: seq, State: StateSuccess, Latency: time.Duration(seq) * time.Millisecond})
	}

	res := agg.Finalize(StatusCompleted)
	require.Len(t, res.Outcomes, 3)
	for i, o := range res.Outcomes {
		assert.Equal(t, i+1, o.Seq)
	}
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "192.0.2.1", res.Addr)
}

func TestAggregator_DiscardsDuplicateHops(t *testing.T) {
	agg := newAggregator(Request{Kind: KindTrace, Target: "example.com"}, "192.0.2.1")

	agg.RecordHop(Hop{TTL: 1, Addr: "10.0.0.1", Responded: true})
	agg.RecordHop(Hop{TTL: 1, Addr: "10.0.0.99", Responded: true})
	agg.RecordHop(Hop{TTL: 2, Addr: "10.0.0.2", Responded: true, Reached: true})

	res := agg.Finalize(StatusCompleted)
	require.Len(t, res.Hops, 2)
	assert.Equal(t, "10.0.0.1", res.Hops[0].Addr)
	assert.Equal(t, "10.0.0.2", res.Hops[1].Addr)
}

func TestAggregator_SortsHopsByTTL(t *testing.T) {
	agg := newAggregator(Request{Kind: KindTrace, Target: "example.com"}, "")

	hops := []Hop{
		{TTL: 3, Addr: "10.0.0.3", Responded: true, Reached: true},
		{TTL: 1, Addr: "10.0.0.1", Responded: true},
		{TTL: 2, Responded: false},
	}
	for _, h := range hops {
		agg.RecordHop(h)
	}

	want := []Hop{
		{TTL: 1, Addr: "10.0.0.1", Responded: true},
		{TTL: 2, Responded: false},
		{TTL: 3, Addr: "10.0.0.3", Responded: true, Reached: true},
	}
	got := agg.Finalize(StatusCompleted).Hops
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hops mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_DowngradesIncompleteSessions(t *testing.T) {
	agg := newAggregator(Request{Kind: KindEcho, Target: "example.com"}, "")

	agg.Dispatched()
	agg.Dispatched()
	agg.Dispatched()
	agg.Record(Outcome{Seq: 1, State: StateSuccess})
	agg.Record(Outcome{Seq: 2, State: StateTimeout})

	res := agg.Finalize(StatusCompleted)
	assert.Equal(t, StatusPartial, res.Status)
}

func TestAggregator_Stats(t *testing.T) {
	agg := newAggregator(Request{Kind: KindEcho, Target: "example.com"}, "")

	outcomes := []Outcome{
		{Seq: 1, State: StateSuccess, Latency: 10 * time.Millisecond},
		{Seq: 2, State: StateTimeout},
		{Seq: 3, State: StateSuccess, Latency: 30 * time.Millisecond},
		{Seq: 4, State: StateUnreachable},
	}
	for _, o := range outcomes {
		agg.Dispatched()
		agg.Record(o)
	}

	stats := agg.Finalize(StatusCompleted).Stats
	assert.Equal(t, 4, stats.Sent)
	assert.Equal(t, 2, stats.Received)
	assert.InDelta(t, 0.5, stats.Loss, 1e-9)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
	assert.Equal(t, 30*time.Millisecond, stats.Max)
	assert.Equal(t, 20*time.Millisecond, stats.Avg)
	assert.Equal(t, 20*time.Millisecond, stats.Jitter)
}

func TestAggregator_StatsErrorsDoNotCountAsLoss(t *testing.T) {
	agg := newAggregator(Request{Kind: KindEcho, Target: "example.com"}, "")

	agg.Dispatched()
	agg.Record(Outcome{Seq: 1, State: StateError, Reason: "socket: operation not permitted"})

	stats := agg.Finalize(StatusCompleted).Stats
	assert.Equal(t, 1, stats.Sent)
	assert.Zero(t, stats.Received)
	assert.Zero(t, stats.Loss)
}

func TestAggregator_HopStats(t *testing.T) {
	agg := newAggregator(Request{Kind: KindTrace, Target: "example.com"}, "")

	agg.RecordHop(Hop{TTL: 1, Addr: "10.0.0.1", Latency: 5 * time.Millisecond, Responded: true})
	agg.RecordHop(Hop{TTL: 2, Responded: false})
	agg.RecordHop(Hop{TTL: 3, Addr: "10.0.0.3", Latency: 15 * time.Millisecond, Responded: true, Reached: true})

	stats := agg.Finalize(StatusCompleted).Stats
	assert.Equal(t, 3, stats.Sent)
	assert.Equal(t, 2, stats.Received)
	assert.InDelta(t, 1.0/3.0, stats.Loss, 1e-9)
	assert.Equal(t, 5*time.Millisecond, stats.Min)
	assert.Equal(t, 15*time.Millisecond, stats.Max)
}

func TestAggregator_SnapshotWhileRecording(t *testing.T) {
	agg := newAggregator(Request{Kind: KindEcho, Target: "example.com"}, "")

	agg.Dispatched()
	agg.Record(Outcome{Seq: 1, State: StateSuccess, Latency: time.Millisecond})

	snap := agg.Snapshot()
	require.Len(t, snap.Outcomes, 1)

	agg.Dispatched()
	agg.Record(Outcome{Seq: 2, State: StateSuccess, Latency: time.Millisecond})

	// The earlier snapshot must not observe later records.
	assert.Len(t, snap.Outcomes, 1)
	assert.Len(t, agg.Snapshot().Outcomes, 2)
}
