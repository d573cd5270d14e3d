// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package config holds the startup configuration of the skua server
// and the probe plan file format.
package config

import (
	"github.com/skua-project/skua/internal/telemetry"
	"github.com/skua-project/skua/pkg/api"
	"github.com/skua-project/skua/pkg/probe"
)

// Config is the startup configuration of the skua server.
type Config struct {
	// Api is the configuration for the api server
	Api api.Config `json:"api" yaml:"api" mapstructure:"api"`
	// Engine is the configuration for the probe engine
	Engine probe.Config `json:"engine" yaml:"engine" mapstructure:"engine"`
	// Telemetry is the configuration for the telemetry
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry" mapstructure:"telemetry"`
}

// HasTelemetry returns true if the config has telemetry enabled
func (c *Config) HasTelemetry() bool {
	return c.Telemetry.Enabled
}
