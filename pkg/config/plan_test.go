// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/skua-project/skua/pkg/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planFS(content string) fstest.MapFS {
	return fstest.MapFS{
		"plan.yaml": &fstest.MapFile{Data: []byte(content)},
	}
}

func TestLoadPlan(t *testing.T) {
	fsys := planFS(`
name: edge reachability
probes:
  - kind: echo
    target: gateway.example.com
    count: 3
    timeout: 2s
  - kind: tcp
    target: db.example.com
    port: 5432
  - kind: http
    target: https://example.com/health
    method: HEAD
  - kind: dns
    target: example.com
    queryType: MX
    nameserver: 192.0.2.53
  - kind: trace
    target: example.com
    maxHops: 20
`)

	plan, err := LoadPlan(fsys, "plan.yaml")
	require.NoError(t, err)

	assert.Equal(t, "edge reachability", plan.Name)
	require.Len(t, plan.Probes, 5)
	assert.Equal(t, probe.KindEcho, plan.Probes[0].Kind)
	assert.Equal(t, 2*time.Second, plan.Probes[0].Timeout)
	assert.Equal(t, 5432, plan.Probes[1].Port)
	assert.Equal(t, "HEAD", plan.Probes[2].Method)
	assert.Equal(t, "192.0.2.53", plan.Probes[3].Nameserver)
	assert.Equal(t, 20, plan.Probes[4].MaxHops)
}

func TestLoadPlan_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty plan", content: "name: empty\n"},
		{name: "not yaml", content: "{{"},
		{
			name: "invalid probe",
			content: `
probes:
  - kind: tcp
    target: example.com
`,
		},
		{
			name: "unknown kind",
			content: `
probes:
  - kind: quic
    target: example.com
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPlan(planFS(tt.content), "plan.yaml")
			assert.Error(t, err)
		})
	}
}

func TestLoadPlan_MissingFile(t *testing.T) {
	_, err := LoadPlan(fstest.MapFS{}, "plan.yaml")
	assert.Error(t, err)
}
