package api

import (
	"fmt"

	"github.com/gogins/csound-ac/internal/action"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the bridge, with one
// operation per catalog action.
func buildOpenAPIDoc(actions []*action.Action) map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness and running launch count",
				"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
			},
		},
		"/actions": map[string]any{
			"get": map[string]any{
				"operationId": "listActions",
				"summary":     "List the action catalog",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "Catalog"}},
			},
		},
		"/launches": map[string]any{
			"get": map[string]any{
				"operationId": "listLaunches",
				"summary":     "List running launches",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "Running launches"}},
			},
		},
		"/launches/{pid}": map[string]any{
			"delete": map[string]any{
				"operationId": "stopLaunch",
				"summary":     "Terminate a running launch",
				"security":    secured,
				"parameters": []any{map[string]any{
					"name": "pid", "in": "path", "required": true,
					"schema": map[string]any{"type": "integer"},
				}},
				"responses": map[string]any{
					"202": map[string]any{"description": "Stopping"},
					"404": map[string]any{"description": "No such launch"},
				},
			},
		},
		"/history": map[string]any{
			"get": map[string]any{
				"operationId": "history",
				"summary":     "Recent invocations, newest first",
				"security":    secured,
				"parameters": []any{
					map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer"}},
					map[string]any{"name": "action", "in": "query", "schema": map[string]any{"type": "string"}},
				},
				"responses": map[string]any{"200": map[string]any{"description": "History"}},
			},
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "events",
				"summary":     "Server-sent launch events",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "text/event-stream"}},
			},
		},
	}

	for _, a := range actions {
		paths["/actions/"+a.ID] = map[string]any{"post": buildActionOperation(a, secured)}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Playpen Bridge",
			"version": "1.0",
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

func buildActionOperation(a *action.Action, security []any) map[string]any {
	summary := a.Description
	if summary == "" {
		summary = fmt.Sprintf("%s action %s", a.Kind, a.ID)
	}

	op := map[string]any{
		"operationId": a.ID,
		"summary":     summary,
		"tags":        []string{string(a.Kind)},
		"security":    security,
	}

	if a.Kind == action.KindURL {
		op["responses"] = map[string]any{
			"200": map[string]any{"description": "URL opened"},
			"404": map[string]any{"description": "Unknown action"},
		}
		return op
	}

	op["requestBody"] = map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type":     "object",
					"required": []string{"document"},
					"properties": map[string]any{
						"document": map[string]any{"type": "string", "description": "Absolute path of the active document"},
						"mode":     map[string]any{"type": "string", "enum": []string{"subprocess", "terminal"}},
					},
				},
			},
		},
	}
	op["responses"] = map[string]any{
		"202": map[string]any{"description": "Launch started"},
		"400": map[string]any{"description": "No active document or bad request"},
		"404": map[string]any{"description": "Unknown action"},
	}
	return op
}
