package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Target string   `json:"target,omitempty"`
	Path   []string `json:"path,omitempty"`
}

// errNotFinite marks a result that JSON cannot represent.
var errNotFinite = errors.New("result is not a finite number")

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.KindUnknownTarget:
		return http.StatusNotFound
	case engine.KindCircularDependency, engine.KindArgumentBinding:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		resp.Kind = string(ee.Kind)
		resp.Target = ee.Target
		resp.Path = ee.Path
	}
	s.writeJSON(w, statusFor(err), resp)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "bad_request"})
}

func (s *Server) writeNotFinite(w http.ResponseWriter, name string) {
	s.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:  name + ": " + errNotFinite.Error(),
		Kind:   "not_finite",
		Target: name,
	})
}

// writeJSON encodes v before sending any of the response, so an encoding
// failure still reaches the client as a 500 with a body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error().Err(err).Int("status", status).Msg("Failed to encode response")
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Error: "failed to encode response", Kind: "internal"})
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// finite reports whether v, a float64 or a quantity, can be sent as JSON.
// Other values are left to the encoder.
func finite(v interface{}) bool {
	f, ok := v.(float64)
	if q, isQuantity := units.AsQuantity(v); isQuantity {
		f, ok = q.Value, true
	}
	return !ok || !(math.IsInf(f, 0) || math.IsNaN(f))
}
