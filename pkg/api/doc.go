// Package api serves a model over HTTP with chi.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /v1/transforms
//	GET  /v1/transforms/{name}
//	GET  /v1/transforms/{name}/requirements
//	GET  /v1/graph[?format=json]
//	GET  /v1/policies
//	POST /v1/evaluate  {"output": "...", "inputs": {...}}
//	POST /v1/sweep     {"output": "...", "inputs": {...}, "axes": [...]}
//
// Unknown targets map to 404, cycles and argument binding failures to 422,
// malformed requests to 400 and every other failure to 500.
package api
