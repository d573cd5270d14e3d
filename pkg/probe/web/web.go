// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package web implements HTTP reachability probes. An attempt succeeds
// when the target answers with a 2xx status; any other status and any
// transport failure is an explicit negative signal.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/skua-project/skua/pkg/probe"
)

// maxDrainBytes bounds how much of a response body is read to allow
// connection reuse without downloading arbitrary payloads.
const maxDrainBytes = 1 << 20

// Payload is the kind-specific data attached to HTTP outcomes.
type Payload struct {
	StatusCode    int               `json:"statusCode"`
	Proto         string            `json:"proto"`
	ContentLength int64             `json:"contentLength,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// flattenHeaders keeps the first value per header; probe output is
// diagnostic, not a proxy.
func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// Prober issues one HTTP request per attempt over a shared client.
type Prober struct {
	client *http.Client
	method string
	url    string
}

// NewFactory returns the [probe.ProberFactory] for HTTP probes.
func NewFactory() probe.ProberFactory {
	return func(_ context.Context, req probe.Request, _ net.IP) (probe.Prober, error) {
		return New(req), nil
	}
}

// New creates an HTTP prober for one session. The engine enforces the
// per-attempt timeout through the context, so the client carries none
// of its own. Redirects are followed unless the request opts out, in
// which case the redirect response itself is the measured answer.
func New(req probe.Request) *Prober {
	client := &http.Client{}
	if req.FollowRedirects != nil && !*req.FollowRedirects {
		client.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Prober{
		client: client,
		method: req.Method,
		url:    req.Target,
	}
}

// Probe sends one request and measures the time to the response
// headers.
func (p *Prober) Probe(ctx context.Context, a probe.Attempt) probe.Outcome {
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, http.NoBody)
	if err != nil {
		return probe.Outcome{State: probe.StateError, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", "skua")

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		return classify(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
	}()

	o := probe.Outcome{
		State:   probe.StateSuccess,
		Latency: latency,
		Data: Payload{
			StatusCode:    resp.StatusCode,
			Proto:         resp.Proto,
			ContentLength: resp.ContentLength,
			Headers:       flattenHeaders(resp.Header),
		},
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		o.State = probe.StateUnreachable
		o.Reason = resp.Status
	}
	return o
}

// classify maps a transport error to its outcome state.
func classify(err error) probe.Outcome {
	switch {
	case errors.Is(err, context.Canceled):
		return probe.Outcome{State: probe.StateCancelled, Reason: "session cancelled"}
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return probe.Outcome{State: probe.StateTimeout, Reason: "request timed out"}
	default:
		return probe.Outcome{State: probe.StateUnreachable, Reason: err.Error()}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Close releases the client's idle connections.
func (p *Prober) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
