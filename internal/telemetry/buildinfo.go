// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	buildInfoMetricName = "skua_build_info"
	buildInfoHelp       = "Build metadata for this skua instance. Emitted once per process."
)

// RegisterBuildInfo registers the skua_build_info info-style metric on
// the given registry. The gauge is set to 1 with the version and the
// Go runtime as labels.
func RegisterBuildInfo(registry *prometheus.Registry, version string) {
	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: buildInfoMetricName,
			Help: buildInfoHelp,
		},
		[]string{"version", "go_version"},
	)
	info.WithLabelValues(version, runtime.Version()).Set(1)
	registry.MustRegister(info)
}
