package api

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

var openapiSpec *openapi3.T

func init() {
	openapiSpec = &openapi3.T{
		OpenAPI: "3.1.1",
		Info: &openapi3.Info{
			Title:       "RULEFORGE API",
			Description: "A REST API for hosting long-lived symbolic-reasoning sessions. Clients create sessions, load rules and clauses, execute time-bounded evaluations and queries, and terminate.",
			Version:     "1.0.0",
			License: &openapi3.License{
				Name: "Apache 2.0",
				URL:  "http://www.apache.org/licenses/LICENSE-2.0.html",
			},
		},
		Servers: openapi3.Servers{
			&openapi3.Server{
				URL:         "http://localhost:8080",
				Description: "Local development server",
			},
		},
		Paths: openapi3.NewPaths(),
		Tags: []*openapi3.Tag{
			{
				Name:        "system",
				Description: "System management endpoints",
			},
			{
				Name:        "sessions",
				Description: "Forward-chaining session endpoints",
			},
			{
				Name:        "devils",
				Description: "Backward-chaining session endpoints",
			},
		},
	}

	addSystemPaths()
	addSessionPaths()
	addDevilsPaths()
}

func addSystemPaths() {
	openapiSpec.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getHealth",
			Summary:     "Health check",
			Description: "Check if the API is healthy",
			Tags:        []string{"system"},
			Responses:   openapi3.NewResponses(),
		},
	})

	openapiSpec.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getReadiness",
			Summary:     "Readiness check",
			Description: "Reports unready when the global session cap is reached",
			Tags:        []string{"system"},
			Responses:   openapi3.NewResponses(),
		},
	})
}

func addSessionPaths() {
	openapiSpec.Paths.Set("/sessions", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listSessions",
			Summary:     "List all forward-chaining sessions",
			Tags:        []string{"sessions"},
			Responses:   openapi3.NewResponses(),
		},
		Post: &openapi3.Operation{
			OperationID: "createSession",
			Summary:     "Create a forward-chaining session",
			Tags:        []string{"sessions"},
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content: openapi3.NewContentWithJSONSchema(&openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: map[string]*openapi3.SchemaRef{
							"user_id": {
								Value: &openapi3.Schema{
									Type:    &openapi3.Types{"string"},
									Example: "alice",
								},
							},
							"preload": {
								Value: &openapi3.Schema{
									Type: &openapi3.Types{"array"},
									Items: &openapi3.SchemaRef{
										Value: &openapi3.Schema{
											Type: &openapi3.Types{"string"},
										},
									},
								},
							},
							"metadata": {
								Value: &openapi3.Schema{
									Type: &openapi3.Types{"object"},
								},
							},
						},
					}),
				},
			},
			Responses: openapi3.NewResponses(),
		},
	})

	openapiSpec.Paths.Set("/sessions/{id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getSession",
			Summary:     "Get a session summary",
			Tags:        []string{"sessions"},
			Parameters:  idParam(),
			Responses:   openapi3.NewResponses(),
		},
		Delete: &openapi3.Operation{
			OperationID: "terminateSession",
			Summary:     "Terminate a session",
			Description: "Idempotent; terminating an already-terminated session succeeds",
			Tags:        []string{"sessions"},
			Parameters:  idParam(),
			Responses:   openapi3.NewResponses(),
		},
	})

	openapiSpec.Paths.Set("/sessions/{id}/evaluate", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "evaluateScript",
			Summary:     "Evaluate a script against the session's engine",
			Tags:        []string{"sessions"},
			Parameters:  idParam(),
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content: openapi3.NewContentWithJSONSchema(&openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: map[string]*openapi3.SchemaRef{
							"script": {
								Value: &openapi3.Schema{
									Type:    &openapi3.Types{"string"},
									Example: `(printout t "Hello" crlf)`,
								},
							},
							"timeout_ms": {
								Value: &openapi3.Schema{
									Type:    &openapi3.Types{"integer"},
									Example: 2000,
								},
							},
						},
					}),
				},
			},
			Responses: openapi3.NewResponses(),
		},
	})

	openapiSpec.Paths.Set("/sessions/{id}/run", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "runSession",
			Summary:     "Run the forward-chaining agenda",
			Tags:        []string{"sessions"},
			Parameters:  idParam(),
			Responses:   openapi3.NewResponses(),
		},
	})
}

func addDevilsPaths() {
	openapiSpec.Paths.Set("/devils", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listDevilsSessions",
			Summary:     "List all backward-chaining sessions",
			Tags:        []string{"devils"},
			Responses:   openapi3.NewResponses(),
		},
		Post: &openapi3.Operation{
			OperationID: "createDevilsSession",
			Summary:     "Create a backward-chaining session",
			Tags:        []string{"devils"},
			Responses:   openapi3.NewResponses(),
		},
	})

	openapiSpec.Paths.Set("/devils/{id}/query", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "queryGoal",
			Summary:     "Resolve a goal against the session's clauses",
			Tags:        []string{"devils"},
			Parameters:  idParam(),
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content: openapi3.NewContentWithJSONSchema(&openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: map[string]*openapi3.SchemaRef{
							"goal": {
								Value: &openapi3.Schema{
									Type:    &openapi3.Types{"string"},
									Example: "ancestor(tom,Who)",
								},
							},
							"all_solutions": {
								Value: &openapi3.Schema{
									Type: &openapi3.Types{"boolean"},
								},
							},
						},
					}),
				},
			},
			Responses: openapi3.NewResponses(),
		},
	})

	openapiSpec.Paths.Set("/devils/{id}/consult", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "consultClauses",
			Summary:     "Load clauses into the session's engine",
			Tags:        []string{"devils"},
			Parameters:  idParam(),
			Responses:   openapi3.NewResponses(),
		},
	})
}

func idParam() []*openapi3.ParameterRef {
	return []*openapi3.ParameterRef{
		{
			Value: &openapi3.Parameter{
				Name:     "id",
				In:       "path",
				Required: true,
				Schema: &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"string"},
					},
				},
			},
		},
	}
}

// ServeOpenAPI writes the API's OpenAPI document as JSON.
func ServeOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openapiSpec)
}
