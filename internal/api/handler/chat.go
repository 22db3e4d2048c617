package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/orthogate/internal/api/response"
)

// ChatHistorian fetches a chat session's history from the backend.
type ChatHistorian interface {
	FetchChatHistory(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// NewChatHistoryHandler returns an http.HandlerFunc for
// GET /api/v1/chat/{sessionID}/history. The backend payload is passed
// through with "success": true set.
func NewChatHistoryHandler(svc ChatHistorian) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := svc.FetchChatHistory(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			response.GatewayError(w, err)
			return
		}
		response.Raw(w, http.StatusOK, history)
	}
}
