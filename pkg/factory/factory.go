// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"github.com/skua-project/skua/internal/trace"
	"github.com/skua-project/skua/pkg/probe"
	"github.com/skua-project/skua/pkg/probe/dns"
	"github.com/skua-project/skua/pkg/probe/echo"
	"github.com/skua-project/skua/pkg/probe/tcp"
	"github.com/skua-project/skua/pkg/probe/web"
)

// registry holds the prober constructors per probe kind.
var registry = map[probe.Kind]probe.ProberFactory{
	probe.KindEcho: echo.NewFactory(),
	probe.KindTCP:  tcp.NewFactory(),
	probe.KindHTTP: web.NewFactory(),
	probe.KindDNS:  dns.NewFactory(),
}

// NewEngine builds a probe engine with every supported probe kind and
// the UDP route discoverer wired in.
func NewEngine(cfg probe.Config) *probe.Engine {
	probers := make(map[probe.Kind]probe.ProberFactory, len(registry))
	for kind, f := range registry {
		probers[kind] = f
	}
	return probe.NewEngine(cfg, probers, trace.New())
}
