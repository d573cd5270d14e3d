// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skua-project/skua/pkg/config"
	"github.com/skua-project/skua/pkg/skua"
)

// NewCmdRun creates a new run command
func NewCmdRun(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"serve"},
		Short:   "Run the skua service",
		Long:    "Run the skua service with the REST and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), version)
		},
	}

	cmd.PersistentFlags().String("api-address", "", "address the API listens on")
	_ = viper.BindPFlag("api.address", cmd.PersistentFlags().Lookup("api-address"))

	return cmd
}

// run holds the main logic of the service's startup
func run(ctx context.Context, version string) error {
	cfg := &config.Config{}
	err := viper.Unmarshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = cfg.Validate(ctx); err != nil {
		return fmt.Errorf("error while validating the config: %w", err)
	}

	s := skua.New(cfg, version)
	return s.Run(ctx)
}
