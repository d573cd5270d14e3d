// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"

	"github.com/skua-project/skua/internal/telemetry"
	"github.com/skua-project/skua/pkg/api"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "zero config is valid",
			cfg:  Config{},
		},
		{
			name: "valid full config",
			cfg: Config{
				Api: api.Config{ListenAddress: ":8080"},
				Telemetry: telemetry.Config{
					Enabled:  true,
					Exporter: telemetry.ExporterGRPC,
					Url:      "collector:4317",
				},
			},
		},
		{
			name:    "invalid api address",
			cfg:     Config{Api: api.Config{ListenAddress: "no-port"}},
			wantErr: true,
		},
		{
			name: "telemetry exporter without url",
			cfg: Config{
				Telemetry: telemetry.Config{
					Enabled:  true,
					Exporter: telemetry.ExporterGRPC,
				},
			},
			wantErr: true,
		},
		{
			name: "disabled telemetry is not validated",
			cfg: Config{
				Telemetry: telemetry.Config{
					Enabled:  false,
					Exporter: telemetry.ExporterGRPC,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
