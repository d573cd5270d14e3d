// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skua-project/skua/pkg/config"
)

func TestRunCmd_ApiAddressFlagReachesConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := NewCmdRun("test")
	require.NoError(t, cmd.PersistentFlags().Set("api-address", "127.0.0.1:9999"))

	cfg := &config.Config{}
	require.NoError(t, viper.Unmarshal(cfg))
	assert.Equal(t, "127.0.0.1:9999", cfg.Api.ListenAddress)
}
