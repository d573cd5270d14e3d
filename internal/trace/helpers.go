// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"math/rand/v2"
	"net"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// basePort is the lower bound for local probe ports.
	basePort = 30000
	// portRange is the range of ports to pick a random port from.
	portRange = 10000
	// ptrCacheTTL bounds how long reverse lookups are reused.
	ptrCacheTTL = 5 * time.Minute
)

// randomPort returns a random port in the interval [30000, 40000).
func randomPort() int {
	return rand.N(portRange) + basePort // #nosec G404 // not used for anything security sensitive
}

// ipFromAddr extracts the IP address from a [net.Addr].
func ipFromAddr(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.TCPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	}
	return nil
}

// ptrCache memoizes reverse DNS lookups. Routers repeat across hops
// and sessions, so a short-lived cache avoids hammering the resolver.
type ptrCache struct {
	cache *ttlcache.Cache[string, string]
}

func newPTRCache() *ptrCache {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ptrCacheTTL),
	)
	go c.Start()
	return &ptrCache{cache: c}
}

// resolve performs a reverse DNS lookup for the given address. Failed
// lookups are cached as empty names so silent routers are only looked
// up once per TTL window.
func (p *ptrCache) resolve(addr net.Addr) string {
	ip := ipFromAddr(addr)
	if ip == nil {
		return ""
	}

	if item := p.cache.Get(ip.String()); item != nil {
		return item.Value()
	}

	var name string
	if names, err := net.LookupAddr(ip.String()); err == nil && len(names) > 0 {
		name = names[0]
	}
	p.cache.Set(ip.String(), name, ttlcache.DefaultTTL)
	return name
}
