// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skua-project/skua/pkg/config"
	"github.com/skua-project/skua/pkg/factory"
)

// NewCmdPlan creates the plan command, which runs every probe of a
// plan file in order.
func NewCmdPlan() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Run all probes of a plan file",
		Long:  "Run the probes of a YAML plan file one after another and print each session's results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0])
		},
	}
}

func runPlan(cmd *cobra.Command, path string) error {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	plan, err := config.LoadPlan(os.DirFS(dir), file)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := factory.NewEngine(cfg.Engine)
	out := cmd.OutOrStdout()

	for i, req := range plan.Probes {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "[%d/%d] %s %s\n", i+1, len(plan.Probes), req.Kind, req.Target)

		res, err := engine.Do(ctx, req)
		if err != nil {
			fmt.Fprintf(out, "failed: %v\n", err)
			continue
		}
		for _, o := range res.Outcomes {
			printOutcome(out, o)
		}
		for _, h := range res.Hops {
			printHop(out, h)
		}
		printSummary(out, *res)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
