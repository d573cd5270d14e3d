// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"slices"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Exporter selects the backend the trace pipeline exports to.
type Exporter string

const (
	// ExporterStdout writes the spans to stdout, mainly for local use.
	ExporterStdout Exporter = "stdout"
	// ExporterGRPC exports the spans to an OTLP collector over gRPC.
	ExporterGRPC Exporter = "grpc"
	// ExporterHTTP exports the spans to an OTLP collector over HTTP.
	ExporterHTTP Exporter = "http"
	// ExporterNoop drops all spans.
	ExporterNoop Exporter = "noop"
)

func (e Exporter) String() string {
	return string(e)
}

// Validate checks if the exporter is one of the supported backends.
// An empty exporter is valid and behaves like [ExporterNoop].
func (e Exporter) Validate() error {
	valid := []Exporter{ExporterStdout, ExporterGRPC, ExporterHTTP, ExporterNoop, ""}
	if !slices.Contains(valid, e) {
		return fmt.Errorf("unsupported exporter %q", e)
	}
	return nil
}

// IsExporting reports whether the exporter sends spans to a remote
// collector and therefore needs a url.
func (e Exporter) IsExporting() bool {
	return e == ExporterGRPC || e == ExporterHTTP
}

// Create builds the span exporter for the configured backend.
func (e Exporter) Create(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch e {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterGRPC:
		return newGRPCExporter(ctx, cfg)
	case ExporterHTTP:
		return newHTTPExporter(ctx, cfg)
	case ExporterNoop, "":
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter %q", e)
	}
}

func newGRPCExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Url),
	}

	if cfg.Token != "" {
		opts = append(opts, otlptracegrpc.WithHeaders(authHeaders(cfg.Token)))
	}

	if cfg.TLS.Enabled {
		pool, err := certPool(cfg.TLS.CertPath)
		if err != nil {
			return nil, err
		}
		creds := credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	} else {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return otlptracegrpc.New(ctx, opts...)
}

func newHTTPExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Url),
	}

	if cfg.Token != "" {
		opts = append(opts, otlptracehttp.WithHeaders(authHeaders(cfg.Token)))
	}

	if cfg.TLS.Enabled {
		pool, err := certPool(cfg.TLS.CertPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}))
	} else {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(ctx, opts...)
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// certPool returns the system pool extended by the certificate at
// path, or the plain system pool if no path is set.
func certPool(path string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("failed to load system cert pool: %w", err)
	}
	if path == "" {
		return pool, nil
	}

	pem, err := os.ReadFile(path) // #nosec G304 // path comes from the local configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %q: %w", path, err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("certificate %q contains no valid PEM data", path)
	}
	return pool, nil
}

// noopExporter drops all spans. It keeps the pipeline wiring uniform
// when exporting is disabled.
type noopExporter struct{}

func (noopExporter) ExportSpans(_ context.Context, _ []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(_ context.Context) error                               { return nil }
