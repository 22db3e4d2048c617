package response_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/orthogate/internal/api/response"
	"github.com/kiranshivaraju/orthogate/internal/gateway"
	"github.com/kiranshivaraju/orthogate/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON_MergesSuccessFlag(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]any{"modelUsed": "ortho-v3", "studiesAnalyzed": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ortho-v3", body["modelUsed"])
	assert.Equal(t, float64(2), body["studiesAnalyzed"])
}

func TestJSON_OverridesPayloadSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]any{"success": false, "n": 1})

	assert.Equal(t, true, decode(t, w)["success"])
}

func TestJSON_NonObjectIsWrapped(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, []string{"a", "b"})

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{"a", "b"}, body["data"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "abc", body["id"])
	assert.Equal(t, true, body["success"])
}

func TestRaw_PassThrough(t *testing.T) {
	w := httptest.NewRecorder()
	response.Raw(w, http.StatusOK, []byte(`{"messages":[{"role":"user","content":"hi"}]}`))

	assert.JSONEq(t, `{"messages":[{"role":"user","content":"hi"}],"success":true}`, w.Body.String())
}

func TestError(t *testing.T) {
	defer response.SetNow(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))()

	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "patientId is required", map[string]string{
		"field": "patientId",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	assert.Equal(t, "patientId is required", body["error"])
	assert.Equal(t, "2025-03-01T12:00:00Z", body["timestamp"])
	assert.NotNil(t, body["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)

	body := decode(t, w)
	_, hasDetails := body["details"]
	assert.False(t, hasDetails)
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestGatewayError_KindToStatus(t *testing.T) {
	tests := []struct {
		err    *gateway.Error
		status int
	}{
		{&gateway.Error{Kind: gateway.KindValidationFailed, Message: "m"}, http.StatusBadRequest},
		{&gateway.Error{Kind: gateway.KindInvalidIdentifier, Message: "m"}, http.StatusBadRequest},
		{&gateway.Error{Kind: gateway.KindServiceUnavailable, Message: "m"}, http.StatusServiceUnavailable},
		{&gateway.Error{Kind: gateway.KindTimeout, Message: "m"}, http.StatusGatewayTimeout},
		{&gateway.Error{Kind: gateway.KindUpstreamRejected, Message: "m", Status: http.StatusConflict}, http.StatusConflict},
		{&gateway.Error{Kind: gateway.KindUpstreamRejected, Message: "m", Status: http.StatusForbidden}, http.StatusBadGateway},
		{&gateway.Error{Kind: gateway.KindUpstreamRejected, Message: "m", Status: http.StatusBadGateway}, http.StatusInternalServerError},
		{&gateway.Error{Kind: gateway.KindProcessingFailed, Message: "m"}, http.StatusInternalServerError},
		{&gateway.Error{Kind: gateway.KindNotFound, Message: "m"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			w := httptest.NewRecorder()
			response.GatewayError(w, fmt.Errorf("handler: %w", tt.err))

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.err.Kind.String(), body["code"])
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestGatewayError_StructuredDetail(t *testing.T) {
	w := httptest.NewRecorder()
	response.GatewayError(w, &gateway.Error{
		Kind:    gateway.KindUpstreamRejected,
		Message: "upstream returned 422 Unprocessable Entity",
		Detail:  json.RawMessage(`[{"loc":["body"],"msg":"field required"}]`),
		Status:  http.StatusUnprocessableEntity,
		Err:     &transport.StatusError{Status: http.StatusUnprocessableEntity},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{map[string]any{"loc": []any{"body"}, "msg": "field required"}}, body["details"])
}

func TestGatewayError_Unclassified(t *testing.T) {
	w := httptest.NewRecorder()
	response.GatewayError(w, fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, body["error"], "boom")
}
