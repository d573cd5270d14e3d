// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net"
)

// defaultListenAddress is used when no address is configured.
const defaultListenAddress = ":8080"

// Config is the configuration of the api server.
type Config struct {
	// ListenAddress is the address the server binds to.
	ListenAddress string `json:"address" yaml:"address" mapstructure:"address"`
	// AllowedOrigins restricts websocket upgrades to the listed
	// origins. An empty list allows any origin.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins" mapstructure:"allowedOrigins"`
}

// Validate checks whether the listen address is well formed.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("invalid api listen address %q: %w", c.ListenAddress, err)
	}
	return nil
}

// address returns the configured listen address or the default.
func (c *Config) address() string {
	if c.ListenAddress == "" {
		return defaultListenAddress
	}
	return c.ListenAddress
}
