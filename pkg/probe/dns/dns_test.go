// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package dns

import (
	"context"
	"net"
	"testing"

	"github.com/skua-project/skua/pkg/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	ips    []net.IP
	cname  string
	mxs    []*net.MX
	txts   []string
	nss    []*net.NS
	err    error
	lookup string
}

func (f *fakeResolver) LookupIP(_ context.Context, network, _ string) ([]net.IP, error) {
	f.lookup = network
	return f.ips, f.err
}

func (f *fakeResolver) LookupCNAME(_ context.Context, _ string) (string, error) {
	return f.cname, f.err
}

func (f *fakeResolver) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	return f.mxs, f.err
}

func (f *fakeResolver) LookupTXT(_ context.Context, _ string) ([]string, error) {
	return f.txts, f.err
}

func (f *fakeResolver) LookupNS(_ context.Context, _ string) ([]*net.NS, error) {
	return f.nss, f.err
}

func newFakeProber(queryType string, r Resolver) *Prober {
	return &Prober{resolver: r, queryType: queryType}
}

func TestProber_Probe_RecordTypes(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		resolver *fakeResolver
		want     []string
	}{
		{
			name:     "A records",
			query:    "A",
			resolver: &fakeResolver{ips: []net.IP{net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 2)}},
			want:     []string{"192.0.2.1", "192.0.2.2"},
		},
		{
			name:     "CNAME record",
			query:    "CNAME",
			resolver: &fakeResolver{cname: "canonical.example.com."},
			want:     []string{"canonical.example.com."},
		},
		{
			name:     "MX records carry preference",
			query:    "MX",
			resolver: &fakeResolver{mxs: []*net.MX{{Host: "mail.example.com.", Pref: 10}}},
			want:     []string{"10 mail.example.com."},
		},
		{
			name:     "TXT records",
			query:    "TXT",
			resolver: &fakeResolver{txts: []string{"v=spf1 -all"}},
			want:     []string{"v=spf1 -all"},
		},
		{
			name:     "NS records",
			query:    "NS",
			resolver: &fakeResolver{nss: []*net.NS{{Host: "ns1.example.com."}}},
			want:     []string{"ns1.example.com."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProber(tt.query, tt.resolver)
			o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Target: "example.com"})

			require.Equal(t, probe.StateSuccess, o.State)
			payload, ok := o.Data.(Payload)
			require.True(t, ok)
			assert.Equal(t, tt.query, payload.QueryType)
			assert.Equal(t, tt.want, payload.Records)
		})
	}
}

func TestProber_Probe_AAAAUsesIPv6Network(t *testing.T) {
	r := &fakeResolver{ips: []net.IP{net.ParseIP("2001:db8::1")}}
	p := newFakeProber("AAAA", r)

	o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Target: "example.com"})
	assert.Equal(t, probe.StateSuccess, o.State)
	assert.Equal(t, "ip6", r.lookup)
}

func TestProber_Probe_NXDomain(t *testing.T) {
	r := &fakeResolver{err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}
	p := newFakeProber("A", r)

	o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Target: "nowhere.invalid"})
	assert.Equal(t, probe.StateUnreachable, o.State)
	assert.Equal(t, "no such host", o.Reason)
}

func TestProber_Probe_ServerTimeout(t *testing.T) {
	r := &fakeResolver{err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}}
	p := newFakeProber("A", r)

	o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Target: "example.com"})
	assert.Equal(t, probe.StateTimeout, o.State)
}

func TestProber_Probe_EmptyAnswer(t *testing.T) {
	p := newFakeProber("TXT", &fakeResolver{})

	o := p.Probe(context.Background(), probe.Attempt{Seq: 1, Target: "example.com"})
	assert.Equal(t, probe.StateUnreachable, o.State)
	assert.Contains(t, o.Reason, "no TXT records")
}

func TestNew_CustomNameserver(t *testing.T) {
	p, err := New(probe.Request{Kind: probe.KindDNS, QueryType: "A", Nameserver: "192.0.2.53"})
	require.NoError(t, err)

	r, ok := p.resolver.(*net.Resolver)
	require.True(t, ok)
	assert.True(t, r.PreferGo)
	assert.NotNil(t, r.Dial)
}

func TestNew_DefaultsToSystemResolver(t *testing.T) {
	p, err := New(probe.Request{Kind: probe.KindDNS, QueryType: "A"})
	require.NoError(t, err)
	assert.Equal(t, net.DefaultResolver, p.resolver)
}
