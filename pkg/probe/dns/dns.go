// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package dns implements DNS resolution probes for the common record
// types, optionally against a caller-supplied nameserver.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/skua-project/skua/pkg/probe"
)

// Resolver is the lookup surface the prober needs from [net.Resolver].
// It exists to allow mocking resolution in tests.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// Payload is the kind-specific data attached to DNS outcomes.
type Payload struct {
	QueryType string   `json:"queryType"`
	Records   []string `json:"records"`
}

// Prober resolves the target once per attempt.
type Prober struct {
	resolver  Resolver
	queryType string
}

// NewFactory returns the [probe.ProberFactory] for DNS probes.
func NewFactory() probe.ProberFactory {
	return func(_ context.Context, req probe.Request, _ net.IP) (probe.Prober, error) {
		return New(req)
	}
}

// New creates a DNS prober for one session. If the request names a
// custom nameserver, queries bypass the system resolver and go to it
// directly.
func New(req probe.Request) (*Prober, error) {
	p := &Prober{
		resolver:  net.DefaultResolver,
		queryType: strings.ToUpper(req.QueryType),
	}

	if req.Nameserver != "" {
		server := req.Nameserver
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		// PreferGo forces the pure Go resolver so the custom dialer
		// is actually used.
		p.resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				d := net.Dialer{}
				return d.DialContext(ctx, network, server)
			},
		}
	}
	return p, nil
}

// Probe resolves the target's records of the session's query type.
// An empty answer and NXDOMAIN are negative signals, not errors.
func (p *Prober) Probe(ctx context.Context, a probe.Attempt) probe.Outcome {
	start := time.Now()
	records, err := p.lookup(ctx, a.Target)
	latency := time.Since(start)

	if err != nil {
		return classify(err)
	}
	if len(records) == 0 {
		return probe.Outcome{
			State:   probe.StateUnreachable,
			Latency: latency,
			Reason:  fmt.Sprintf("no %s records", p.queryType),
		}
	}

	return probe.Outcome{
		State:   probe.StateSuccess,
		Latency: latency,
		Data:    Payload{QueryType: p.queryType, Records: records},
	}
}

// lookup dispatches to the resolver call matching the query type.
func (p *Prober) lookup(ctx context.Context, target string) ([]string, error) {
	switch p.queryType {
	case "A":
		return p.lookupIP(ctx, "ip4", target)
	case "AAAA":
		return p.lookupIP(ctx, "ip6", target)
	case "CNAME":
		cname, err := p.resolver.LookupCNAME(ctx, target)
		if err != nil {
			return nil, err
		}
		return []string{cname}, nil
	case "MX":
		mxs, err := p.resolver.LookupMX(ctx, target)
		if err != nil {
			return nil, err
		}
		records := make([]string, 0, len(mxs))
		for _, mx := range mxs {
			records = append(records, fmt.Sprintf("%d %s", mx.Pref, mx.Host))
		}
		return records, nil
	case "TXT":
		return p.resolver.LookupTXT(ctx, target)
	case "NS":
		nss, err := p.resolver.LookupNS(ctx, target)
		if err != nil {
			return nil, err
		}
		records := make([]string, 0, len(nss))
		for _, ns := range nss {
			records = append(records, ns.Host)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unsupported query type %q", p.queryType)
	}
}

func (p *Prober) lookupIP(ctx context.Context, network, target string) ([]string, error) {
	ips, err := p.resolver.LookupIP(ctx, network, target)
	if err != nil {
		return nil, err
	}
	records := make([]string, 0, len(ips))
	for _, ip := range ips {
		records = append(records, ip.String())
	}
	return records, nil
}

// classify maps a resolution error to its outcome state. NXDOMAIN is
// an authoritative answer that the name does not exist, while a silent
// nameserver is a timeout.
func classify(err error) probe.Outcome {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.Canceled):
		return probe.Outcome{State: probe.StateCancelled, Reason: "session cancelled"}
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return probe.Outcome{State: probe.StateUnreachable, Reason: "no such host"}
	case errors.As(err, &dnsErr) && dnsErr.IsTimeout, errors.Is(err, context.DeadlineExceeded):
		return probe.Outcome{State: probe.StateTimeout, Reason: "query timed out"}
	default:
		return probe.Outcome{State: probe.StateError, Reason: err.Error()}
	}
}

// Close implements [probe.Prober]. The resolver holds no state.
func (p *Prober) Close() error { return nil }
