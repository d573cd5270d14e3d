// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/skua-project/skua/internal/logger"
	"github.com/skua-project/skua/pkg/probe"
	"gopkg.in/yaml.v3"
)

// probeRoutes are the REST endpoints serving probe sessions, in the
// order they appear in the schema.
var probeRoutes = []struct {
	path string
	kind probe.Kind
}{
	{path: "/api/v1/ping", kind: probe.KindEcho},
	{path: "/api/v1/tcping", kind: probe.KindTCP},
	{path: "/api/v1/website", kind: probe.KindHTTP},
	{path: "/api/v1/traceroute", kind: probe.KindTrace},
	{path: "/api/v1/dns", kind: probe.KindDNS},
}

// handleOpenAPI serves the generated schema as YAML.
func (a *api) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	doc, err := a.openapiSchema()
	if err != nil {
		log.ErrorContext(r.Context(), "Failed to generate openapi schema", "error", err)
		a.fail(w, r, http.StatusInternalServerError, ErrCreateOpenapiSchema{err: err})
		return
	}

	// kin-openapi only marshals to JSON; round-trip for YAML output.
	raw, err := json.Marshal(doc)
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, ErrCreateOpenapiSchema{err: err})
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		a.fail(w, r, http.StatusInternalServerError, ErrCreateOpenapiSchema{err: err})
		return
	}

	w.Header().Set("Content-Type", "text/yaml")
	if err := yaml.NewEncoder(w).Encode(tree); err != nil {
		log.ErrorContext(r.Context(), "Failed to encode openapi schema", "error", err)
	}
}

// openapiSchema assembles the schema for all probe endpoints.
func (a *api) openapiSchema() (*openapi3.T, error) {
	reqSchema, err := openapi3gen.NewSchemaRefForValue(probeBody{}, openapi3.Schemas{})
	if err != nil {
		return nil, ErrCreateOpenapiSchema{name: "request", err: err}
	}
	resSchema, err := openapi3gen.NewSchemaRefForValue(response{Data: probe.Result{}}, openapi3.Schemas{})
	if err != nil {
		return nil, ErrCreateOpenapiSchema{name: "result", err: err}
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:       "Skua API",
			Description: "Unified network diagnostics engine",
			Version:     a.version,
		},
		Paths: openapi3.NewPaths(),
	}

	for _, route := range probeRoutes {
		doc.Paths.Set(route.path, &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "probe-" + route.kind.String(),
				Description: "Run a " + route.kind.String() + " probe session",
				RequestBody: &openapi3.RequestBodyRef{
					Value: openapi3.NewRequestBody().WithJSONSchemaRef(reqSchema),
				},
				Responses: openapi3.NewResponses(
					openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
						Value: openapi3.NewResponse().
							WithDescription("Terminal probe result").
							WithJSONSchemaRef(resSchema),
					}),
				),
			},
		})
	}
	return doc, nil
}
