package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/policy"
	"github.com/camia/aviation/pkg/sweep"
	"github.com/camia/aviation/pkg/telemetry"
)

// TransformInfo describes a registered transform.
type TransformInfo struct {
	Name        string   `json:"name"`
	Parameters  []string `json:"parameters"`
	Description string   `json:"description,omitempty"`
	Signature   string   `json:"signature"`
	Strict      bool     `json:"strict"`
}

// EvaluateRequest is the body of POST /v1/evaluate. Inputs are plain numbers
// or {"value", "unit"} objects.
type EvaluateRequest struct {
	Output string                 `json:"output"`
	Inputs map[string]interface{} `json:"inputs"`
}

// EvaluateResponse is the result of an evaluation.
type EvaluateResponse struct {
	Output      string                 `json:"output"`
	Value       interface{}            `json:"value"`
	Derived     map[string]interface{} `json:"derived"`
	Invocations int                    `json:"invocations"`
	DurationMS  float64                `json:"duration_ms"`
	Warnings    []policy.Violation     `json:"warnings,omitempty"`
}

// SweepRequest is the body of POST /v1/sweep.
type SweepRequest struct {
	Output string                 `json:"output"`
	Inputs map[string]interface{} `json:"inputs"`
	Axes   []config.SweepAxis     `json:"axes"`
}

// SweepPoint is one evaluated point of a sweep.
type SweepPoint struct {
	Coordinates map[string]interface{} `json:"coordinates"`
	Value       interface{}            `json:"value,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// SweepResponse is the result of a sweep.
type SweepResponse struct {
	Output string       `json:"output"`
	Points []SweepPoint `json:"points"`
	Failed int          `json:"failed"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"transforms": s.model.Len(),
	})
}

func transformInfo(t *engine.Transform) TransformInfo {
	return TransformInfo{
		Name:        t.Name(),
		Parameters:  t.Parameters(),
		Description: t.Description(),
		Signature:   t.Signature(),
		Strict:      t.IsStrict(),
	}
}

func (s *Server) listTransforms(w http.ResponseWriter, _ *http.Request) {
	transforms := s.model.Transforms()
	out := make([]TransformInfo, len(transforms))
	for i, t := range transforms {
		out[i] = transformInfo(t)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTransform(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := s.model.Transform(name)
	if !ok {
		s.writeError(w, engine.NewUnknownTargetError(name, nil))
		return
	}
	s.writeJSON(w, http.StatusOK, transformInfo(t))
}

func (s *Server) requirements(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	inputs, err := s.graph.Requirements(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"output": name,
		"inputs": inputs,
	})
}

// getGraph serves Graphviz DOT, or the graph as JSON with ?format=json.
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "", "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, s.graph.ToDOT())
	case "json":
		s.writeJSON(w, http.StatusOK, s.graph)
	default:
		s.writeBadRequest(w, fmt.Errorf("unknown graph format %q", r.URL.Query().Get("format")))
	}
}

func (s *Server) listPolicies(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.policies.ListPolicies())
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if req.Output == "" {
		s.writeBadRequest(w, errors.New("output is required"))
		return
	}
	inputs, err := config.NormalizeInputs(req.Inputs)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	warnings, ok := s.checkPolicies(w, r, req.Output, inputs)
	if !ok {
		return
	}

	ev, err := s.model.EvaluateContext(r.Context(), inputs, req.Output)
	if err != nil {
		s.logger.Debug().Err(err).Str("output", req.Output).Msg("Evaluation failed")
		s.writeError(w, err)
		return
	}

	derived := make(map[string]interface{}, len(ev.Derived))
	for _, name := range ev.Derived {
		derived[name] = ev.Inputs[name]
		if !finite(derived[name]) {
			s.writeNotFinite(w, name)
			return
		}
	}
	if !finite(ev.Value) {
		s.writeNotFinite(w, ev.Output)
		return
	}

	s.writeJSON(w, http.StatusOK, EvaluateResponse{
		Output:      ev.Output,
		Value:       ev.Value,
		Derived:     derived,
		Invocations: ev.Invocations,
		DurationMS:  float64(ev.Duration) / float64(time.Millisecond),
		Warnings:    warnings,
	})
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if req.Output == "" {
		s.writeBadRequest(w, errors.New("output is required"))
		return
	}
	base, err := config.NormalizeInputs(req.Inputs)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	scenario := config.Scenario{Sweep: req.Axes}
	total, err := scenario.GridSize(s.maxSweepPoints)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	axes, err := scenario.Axes(s.maxSweepPoints)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	if _, ok := s.checkPolicies(w, r, req.Output, base); !ok {
		return
	}

	op := telemetry.StartOperation(r.Context(), "sweep",
		telemetry.AttrOutput.String(req.Output),
		attribute.Int("sweep.points", total))
	op.Logger = op.Logger.WithOutput(req.Output).WithRunID(middleware.GetReqID(r.Context()))
	if id := telemetry.TraceID(op.Ctx); id != "" {
		w.Header().Set("X-Trace-Id", id)
	}

	results, err := sweep.Run(op.Ctx, s.model, base, axes, req.Output, sweep.Options{
		Concurrency:     s.sweepConcurrency,
		ContinueOnError: true,
	})
	op.End(err)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := SweepResponse{Output: req.Output, Points: make([]SweepPoint, len(results))}
	for i, res := range results {
		resp.Points[i] = SweepPoint{Coordinates: res.Coordinates, Value: res.Value}
		if res.Err == nil && !finite(res.Value) {
			res.Err = fmt.Errorf("%s: %w", req.Output, errNotFinite)
			resp.Points[i].Value = nil
		}
		if res.Err != nil {
			resp.Points[i].Error = res.Err.Error()
			resp.Failed++
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// checkPolicies runs the input policies. It writes a 422 response and
// returns false when the inputs are denied.
func (s *Server) checkPolicies(w http.ResponseWriter, r *http.Request, output string, inputs map[string]interface{}) ([]policy.Violation, bool) {
	if s.policies == nil {
		return nil, true
	}
	result, err := s.policies.Check(r.Context(), output, inputs)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if !result.Allowed {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      "inputs denied by policy",
			"kind":       "policy_violation",
			"violations": result.Violations,
			"warnings":   result.Warnings,
		})
		return nil, false
	}
	return result.Warnings, true
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
