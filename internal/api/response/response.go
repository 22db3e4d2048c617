// Package response writes the API's JSON envelopes. Success bodies are the
// payload itself with "success": true set; failures share one shape.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/orthogate/internal/gateway"
	"github.com/tidwall/sjson"
)

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

type dataEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// now is replaced in tests.
var now = time.Now

func JSON(w http.ResponseWriter, data any) {
	writeSuccess(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	writeSuccess(w, http.StatusCreated, data)
}

// Raw writes an already-encoded JSON object with "success": true merged in.
func Raw(w http.ResponseWriter, status int, body []byte) {
	out, err := sjson.SetBytes(body, "success", true)
	if err != nil {
		writeJSON(w, status, dataEnvelope{Success: true, Data: json.RawMessage(body)})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{
		Success:   false,
		Error:     message,
		Code:      code,
		Details:   details,
		Timestamp: now().UTC().Format(time.RFC3339),
	})
}

// GatewayError writes err with the status and code of its gateway kind.
// Anything else is reported as an internal error without leaking its text.
func GatewayError(w http.ResponseWriter, err error) {
	gwErr, ok := gateway.AsError(err)
	if !ok {
		slog.Error("unclassified handler error", "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	var details any
	if len(gwErr.Detail) > 0 {
		details = gwErr.Detail
	}
	Error(w, gwErr.HTTPStatus(), gwErr.Kind.String(), gwErr.Message, details)
}

// writeSuccess encodes data and sets "success": true on it. Values that do
// not encode to a JSON object are wrapped under "data".
func writeSuccess(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("encode response", "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}
	if len(body) == 0 || body[0] != '{' {
		writeJSON(w, status, dataEnvelope{Success: true, Data: json.RawMessage(body)})
		return
	}
	Raw(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
