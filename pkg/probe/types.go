// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"encoding/json"
	"net"
	"slices"
	"strings"
	"time"
)

// Kind identifies the transport mechanism used for a probe.
type Kind string

// Kind constants for the supported probe types.
const (
	// KindEcho sends ICMP echo requests.
	KindEcho Kind = "echo"
	// KindTCP establishes TCP connections.
	KindTCP Kind = "tcp"
	// KindHTTP performs HTTP requests.
	KindHTTP Kind = "http"
	// KindTrace discovers the route to the target hop by hop.
	KindTrace Kind = "trace"
	// KindDNS resolves DNS records.
	KindDNS Kind = "dns"
)

func (k Kind) String() string {
	return string(k)
}

func (k Kind) IsValid() bool {
	valid := []Kind{KindEcho, KindTCP, KindHTTP, KindTrace, KindDNS}
	return slices.Contains(valid, k)
}

// sequential reports whether attempts of this kind are dispatched one
// after another. Echo and TCP probes mirror conventional ping tools,
// where overlapping attempts would skew the measured latency.
func (k Kind) sequential() bool {
	return k == KindEcho || k == KindTCP
}

// Request describes one probe session. It is immutable once submitted
// to the engine.
type Request struct {
	// Kind selects the transport mechanism.
	Kind Kind `json:"kind" yaml:"kind" mapstructure:"kind"`
	// Target is the host, IP, URL, or domain to probe, depending on Kind.
	Target string `json:"target" yaml:"target" mapstructure:"target"`
	// Count is the number of attempts to dispatch.
	Count int `json:"count,omitempty" yaml:"count,omitempty" mapstructure:"count"`
	// Timeout bounds each individual attempt.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	// Delay is the pause between sequential attempts.
	Delay time.Duration `json:"delay,omitempty" yaml:"delay,omitempty" mapstructure:"delay"`
	// Port is the target port for TCP probes.
	Port int `json:"port,omitempty" yaml:"port,omitempty" mapstructure:"port"`
	// Method is the HTTP method for HTTP probes.
	Method string `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	// FollowRedirects controls whether HTTP probes follow redirects.
	// Unset means follow.
	FollowRedirects *bool `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty" mapstructure:"followRedirects"`
	// MaxHops bounds the route discovery.
	MaxHops int `json:"maxHops,omitempty" yaml:"maxHops,omitempty" mapstructure:"maxHops"`
	// HopProbes is the number of parallel probes per hop.
	HopProbes int `json:"hopProbes,omitempty" yaml:"hopProbes,omitempty" mapstructure:"hopProbes"`
	// QueryType is the DNS record type to query.
	QueryType string `json:"queryType,omitempty" yaml:"queryType,omitempty" mapstructure:"queryType"`
	// Nameserver overrides the system resolver for DNS probes.
	Nameserver string `json:"nameserver,omitempty" yaml:"nameserver,omitempty" mapstructure:"nameserver"`
}

// supported HTTP methods and DNS query types
var (
	validMethods    = []string{"GET", "POST", "PUT", "DELETE", "HEAD"}
	validQueryTypes = []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"}
)

const maxHopLimit = 64

// Validate checks if the request is valid. A request that fails
// validation is rejected before any attempt is dispatched.
func (r Request) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidRequest{Kind: r.Kind, Field: "kind", Reason: "unknown probe kind"}
	}
	if r.Target == "" {
		return ErrInvalidRequest{Kind: r.Kind, Field: "target", Reason: "target cannot be empty"}
	}
	if r.Count < 0 {
		return ErrInvalidRequest{Kind: r.Kind, Field: "count", Reason: "count must not be negative"}
	}
	if r.Timeout < 0 {
		return ErrInvalidRequest{Kind: r.Kind, Field: "timeout", Reason: "timeout must not be negative"}
	}

	switch r.Kind {
	case KindTCP:
		if r.Port < 1 || r.Port > 65535 {
			return ErrInvalidRequest{Kind: r.Kind, Field: "port", Reason: "port must be between 1 and 65535"}
		}
	case KindHTTP:
		if r.Method != "" && !slices.Contains(validMethods, strings.ToUpper(r.Method)) {
			return ErrInvalidRequest{Kind: r.Kind, Field: "method", Reason: "unsupported HTTP method"}
		}
		if !strings.HasPrefix(r.Target, "http://") && !strings.HasPrefix(r.Target, "https://") {
			return ErrInvalidRequest{Kind: r.Kind, Field: "target", Reason: "target must be an http(s) URL"}
		}
	case KindTrace:
		if r.MaxHops < 0 || r.MaxHops > maxHopLimit {
			return ErrInvalidRequest{Kind: r.Kind, Field: "maxHops", Reason: "maxHops must be between 0 and 64"}
		}
		if r.HopProbes < 0 {
			return ErrInvalidRequest{Kind: r.Kind, Field: "hopProbes", Reason: "hopProbes must not be negative"}
		}
	case KindDNS:
		if r.QueryType != "" && !slices.Contains(validQueryTypes, strings.ToUpper(r.QueryType)) {
			return ErrInvalidRequest{Kind: r.Kind, Field: "queryType", Reason: "unsupported query type"}
		}
	}
	return nil
}

// Attempt is one outbound probe operation. Its sequence number is
// unique within the session and strictly increasing in dispatch order.
type Attempt struct {
	// Seq is the sequence number of the attempt within its session.
	Seq int
	// Target is the request's raw target.
	Target string
	// Addr is the resolved target address, where the kind requires one.
	Addr net.IP
	// Port is the target port for TCP probes.
	Port int
	// Timeout bounds this attempt.
	Timeout time.Duration
	// SentAt is the dispatch timestamp.
	SentAt time.Time
}

// State classifies the terminal outcome of an attempt.
type State string

const (
	// StateSuccess means a response was received within the timeout.
	StateSuccess State = "success"
	// StateTimeout means no response arrived within the timeout.
	StateTimeout State = "timeout"
	// StateUnreachable means an explicit negative signal was received,
	// e.g. a connection refusal or an ICMP destination-unreachable.
	StateUnreachable State = "unreachable"
	// StateError means the attempt could not run, e.g. missing raw
	// socket privileges or a malformed target.
	StateError State = "error"
	// StateCancelled means the session was cancelled while the attempt
	// was in flight.
	StateCancelled State = "cancelled"
)

// Outcome is the terminal result of one attempt. It is produced exactly
// once per dispatched attempt.
type Outcome struct {
	Seq     int           `json:"seq"`
	State   State         `json:"state"`
	Latency time.Duration `json:"-"`
	// Peer is the address that answered, if any.
	Peer string `json:"peer,omitempty"`
	// Reason carries the negative signal or error cause.
	Reason string `json:"reason,omitempty"`
	// Data holds kind-specific payloads, e.g. HTTP status or DNS records.
	Data any `json:"data,omitempty"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	type alias Outcome
	return json.Marshal(&struct {
		Latency string `json:"latency"`
		alias
	}{
		Latency: o.Latency.String(),
		alias:   alias(o),
	})
}

// lost reports whether the attempt counts towards the loss ratio.
func (o Outcome) lost() bool {
	return o.State == StateTimeout || o.State == StateUnreachable
}

// Hop is one TTL-indexed point along a discovered route.
type Hop struct {
	TTL     int           `json:"ttl"`
	Addr    string        `json:"addr,omitempty"`
	Name    string        `json:"name,omitempty"`
	Latency time.Duration `json:"-"`
	// Responded is false if every probe for this TTL timed out.
	Responded bool `json:"responded"`
	// Reached is true iff the responder is the target itself.
	Reached bool `json:"reached"`
}

func (h Hop) MarshalJSON() ([]byte, error) {
	type alias Hop
	return json.Marshal(&struct {
		Latency string `json:"latency"`
		alias
	}{
		Latency: h.Latency.String(),
		alias:   alias(h),
	})
}

// Status is the terminal state of a session.
type Status string

const (
	// StatusCompleted means every dispatched attempt or hop reached a
	// terminal outcome before the session closed.
	StatusCompleted Status = "completed"
	// StatusPartial means the session stopped early, e.g. by
	// cancellation, with a prefix of resolved outcomes.
	StatusPartial Status = "partially_completed"
	// StatusFailed means the request could not run at all.
	StatusFailed Status = "failed"
)

// Stats summarizes the latency distribution and loss of a session.
// Latency figures are computed over successful attempts only.
type Stats struct {
	Sent     int           `json:"sent"`
	Received int           `json:"received"`
	Loss     float64       `json:"loss"`
	Min      time.Duration `json:"-"`
	Avg      time.Duration `json:"-"`
	Max      time.Duration `json:"-"`
	Jitter   time.Duration `json:"-"`
}

func (s Stats) MarshalJSON() ([]byte, error) {
	type alias Stats
	return json.Marshal(&struct {
		Min    string `json:"min"`
		Avg    string `json:"avg"`
		Max    string `json:"max"`
		Jitter string `json:"jitter"`
		alias
	}{
		Min:    s.Min.String(),
		Avg:    s.Avg.String(),
		Max:    s.Max.String(),
		Jitter: s.Jitter.String(),
		alias:  alias(s),
	})
}

// Result aggregates all attempts or hops of a session.
type Result struct {
	Kind       Kind      `json:"kind"`
	Target     string    `json:"target"`
	Addr       string    `json:"addr,omitempty"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
	Hops       []Hop     `json:"hops,omitempty"`
	Stats      Stats     `json:"stats"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
