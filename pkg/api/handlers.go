// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/pkg/probe"
)

// response is the envelope wrapping every api payload.
type response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// probeBody is the wire form of a probe request. Duration fields are
// human readable strings; the target accepts the field name matching
// the probe kind.
type probeBody struct {
	Target     string `json:"target,omitempty"`
	Host       string `json:"host,omitempty"`
	URL        string `json:"url,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Count      int    `json:"count,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	Port       int    `json:"port,omitempty"`
	Method     string `json:"method,omitempty"`
	MaxHops    int    `json:"maxHops,omitempty"`
	HopProbes  int    `json:"hopProbes,omitempty"`
	QueryType  string `json:"queryType,omitempty"`
	Nameserver string `json:"nameserver,omitempty"`
	Follow     *bool  `json:"followRedirects,omitempty"`
}

// toRequest converts the wire form into an engine request.
func (b probeBody) toRequest(kind probe.Kind) (probe.Request, error) {
	req := probe.Request{
		Kind:            kind,
		Target:          firstOf(b.Target, b.Host, b.URL, b.Domain),
		Count:           b.Count,
		Port:            b.Port,
		Method:          b.Method,
		MaxHops:         b.MaxHops,
		HopProbes:       b.HopProbes,
		QueryType:       b.QueryType,
		Nameserver:      b.Nameserver,
		FollowRedirects: b.Follow,
	}

	if b.Timeout != "" {
		timeout, err := time.ParseDuration(b.Timeout)
		if err != nil {
			return req, fmt.Errorf("invalid timeout %q: %w", b.Timeout, err)
		}
		req.Timeout = timeout
	}
	return req, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// handleProbe runs one blocking probe session for the given kind.
func (a *api) handleProbe(kind probe.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body probeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			a.fail(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}

		req, err := body.toRequest(kind)
		if err != nil {
			a.fail(w, r, http.StatusBadRequest, err)
			return
		}

		res, err := a.engine.Do(ctx, req)
		if err != nil {
			a.fail(w, r, statusFor(err), err)
			return
		}
		a.ok(w, r, res)
	}
}

// statusFor maps engine errors to http status codes.
func statusFor(err error) int {
	var invalid probe.ErrInvalidRequest
	var unsupported probe.ErrUnsupportedKind
	var resolve probe.ErrResolve
	switch {
	case errors.As(err, &invalid), errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &resolve):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth reports liveness.
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.ok(w, r, map[string]string{"status": "healthy"})
}

// handleStatus reports the server's version, uptime and capabilities.
func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.ok(w, r, map[string]any{
		"version":   a.version,
		"startedAt": a.startedAt,
		"uptime":    time.Since(a.startedAt).Round(time.Second).String(),
		"kinds":     a.engine.Kinds(),
	})
}

func (a *api) ok(w http.ResponseWriter, r *http.Request, data any) {
	a.writeJSON(w, r, http.StatusOK, response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.writeJSON(w, r, status, response{
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (a *api) writeJSON(w http.ResponseWriter, r *http.Request, status int, resp response) {
	log := logger.FromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}
