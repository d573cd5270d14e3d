// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-viper/mapstructure/v2"
	"github.com/skua-project/skua/pkg/probe"
	"gopkg.in/yaml.v3"
)

// Plan is a reusable list of probe requests, run in order by the plan
// command.
type Plan struct {
	// Name describes the plan in output and logs.
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	// Probes are the requests to execute, in order.
	Probes []probe.Request `json:"probes" yaml:"probes" mapstructure:"probes"`
}

// LoadPlan reads and validates a YAML probe plan.
func LoadPlan(fsys fs.FS, name string) (plan *Plan, err error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	b, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	plan = &Plan{}
	// Durations in the plan are human readable ("2s"), which the
	// duration hook converts.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     plan,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build plan decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode plan file: %w", err)
	}

	if len(plan.Probes) == 0 {
		return nil, errors.New("plan contains no probes")
	}
	for i := range plan.Probes {
		if err := plan.Probes[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid probe %d in plan: %w", i+1, err)
		}
	}
	return plan, nil
}
