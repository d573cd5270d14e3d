// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics defines the metric collectors of the probe engine
type metrics struct {
	attempts *prometheus.CounterVec
	sessions *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// newMetrics initializes the metric collectors of the probe engine
func newMetrics() metrics {
	return metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skua_probe_attempts_total",
				Help: "Total number of probe attempts by kind and terminal state.",
			},
			[]string{"kind", "state"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skua_probe_sessions_total",
				Help: "Total number of probe sessions by kind and final status.",
			},
			[]string{"kind", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "skua_probe_latency_seconds",
				Help: "Histogram of successful probe round trip times in seconds.",
			},
			[]string{"kind"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "skua_probe_inflight_attempts",
				Help: "Number of attempts currently holding an admission slot.",
			},
		),
	}
}

// List returns all metric collectors
func (m *metrics) List() []prometheus.Collector {
	return []prometheus.Collector{
		m.attempts,
		m.sessions,
		m.latency,
		m.inflight,
	}
}

// recordOutcome updates the per-attempt collectors.
func (m *metrics) recordOutcome(kind Kind, o Outcome) {
	m.attempts.WithLabelValues(kind.String(), string(o.State)).Inc()
	if o.State == StateSuccess {
		m.latency.WithLabelValues(kind.String()).Observe(o.Latency.Seconds())
	}
}
