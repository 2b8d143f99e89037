package api

import "net/http"

// handleOpenAPI serves GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.Version))
}

func jsonBody(schema map[string]any) map[string]any {
	return map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the labelspool API.
func buildOpenAPIDoc(version string) map[string]any {
	if version == "" {
		version = "dev"
	}
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	str := map[string]any{"type": "string"}

	selection := objectSchema(map[string]any{"printer": str, "folder": str})

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness and current selection",
				"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
			},
		},
		"/metrics": map[string]any{
			"get": map[string]any{
				"operationId": "metrics",
				"summary":     "Prometheus metrics",
				"responses":   map[string]any{"200": map[string]any{"description": "Prometheus text format"}},
			},
		},
		"/print": map[string]any{
			"post": map[string]any{
				"operationId": "print",
				"summary":     "Print files by path on the selected or given printer",
				"security":    secured,
				"requestBody": jsonBody(objectSchema(map[string]any{
					"files":   map[string]any{"type": "array", "items": str},
					"printer": str,
				}, "files")),
				"responses": map[string]any{
					"200": map[string]any{"description": "Per-file results"},
					"400": map[string]any{"description": "Bad request"},
					"409": map[string]any{"description": "No printer selected"},
				},
			},
		},
		"/history": map[string]any{
			"get": map[string]any{
				"operationId": "history",
				"summary":     "Recent dispatches, newest first",
				"security":    secured,
				"parameters": []any{map[string]any{
					"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1},
				}},
				"responses": map[string]any{"200": map[string]any{"description": "OK"}},
			},
		},
		"/printers": map[string]any{
			"get": map[string]any{
				"operationId": "printers",
				"summary":     "Configured aliases and CUPS queues",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
			},
		},
		"/selection": map[string]any{
			"get": map[string]any{
				"operationId": "getSelection",
				"summary":     "Current printer and watched folder",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
			},
			"put": map[string]any{
				"operationId": "putSelection",
				"summary":     "Change printer and/or watched folder",
				"security":    secured,
				"requestBody": jsonBody(selection),
				"responses": map[string]any{
					"200": map[string]any{"description": "Saved selection"},
					"400": map[string]any{"description": "Bad request"},
				},
			},
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "events",
				"summary":     "Server-Sent Events stream of dispatch activity",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "text/event-stream"}},
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "labelspool",
			"version": version,
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
