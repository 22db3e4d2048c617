package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/orthogate/internal/api/middleware"
	"github.com/kiranshivaraju/orthogate/internal/api/response"
	"github.com/kiranshivaraju/orthogate/internal/cache"
	"github.com/kiranshivaraju/orthogate/internal/store"
	"github.com/kiranshivaraju/orthogate/pkg/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const maxAnalysisBody = 10 << 20

// Analyzer forwards analysis batches to the analysis engine.
type Analyzer interface {
	ForwardAnalysis(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisOutcome, error)
}

// DocumentStore is the subset of store.Store the analysis handlers use.
type DocumentStore interface {
	PutDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, collection, key string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter store.DocumentFilter) ([]*models.Document, error)
}

type analyzeResponse struct {
	*models.AnalysisOutcome
	AnalysisID string `json:"analysisId,omitempty"`
}

// NewAnalyzeHandler returns an http.HandlerFunc for
// POST /api/v1/clinical-analysis/analyze-patient.
// A successful outcome is saved for later lookup; a failed save is logged
// and the outcome is still returned.
func NewAnalyzeHandler(svc Analyzer, docs DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := mw.GetCallerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing caller", nil)
			return
		}

		var req models.AnalysisRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalysisBody)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid JSON body", nil)
			return
		}

		outcome, err := svc.ForwardAnalysis(r.Context(), &req)
		if err != nil {
			response.GatewayError(w, err)
			return
		}

		resp := analyzeResponse{AnalysisOutcome: outcome}
		if id, err := saveOutcome(r.Context(), docs, callerID, outcome); err != nil {
			slog.Warn("persist analysis outcome",
				"error", err,
				"patient_id", req.PatientID,
				"request_id", mw.GetRequestID(r.Context()),
			)
		} else {
			resp.AnalysisID = id
		}

		response.JSON(w, resp)
	}
}

func saveOutcome(ctx context.Context, docs DocumentStore, owner uuid.UUID, outcome *models.AnalysisOutcome) (string, error) {
	body, err := json.Marshal(outcome)
	if err != nil {
		return "", err
	}
	doc := &models.Document{
		Collection: models.CollectionAnalyses,
		Key:        uuid.NewString(),
		Owner:      owner.String(),
		Body:       body,
	}
	if err := docs.PutDocument(ctx, doc); err != nil {
		return "", err
	}
	return doc.Key, nil
}

// NewGetAnalysisHandler returns an http.HandlerFunc for
// GET /api/v1/clinical-analysis/{analysisID}. Callers only see their own
// analyses unless they hold the admin scope.
func NewGetAnalysisHandler(docs DocumentStore, c cache.AnalysisCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := mw.GetCallerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing caller", nil)
			return
		}

		id := chi.URLParam(r, "analysisID")
		if _, err := uuid.Parse(id); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_IDENTIFIER", "analysisID must be a UUID", nil)
			return
		}

		doc, err := loadAnalysis(r.Context(), docs, c, id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
			return
		}
		if err != nil {
			slog.Error("load analysis", "error", err, "analysis_id", id)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		if doc.Owner != callerID.String() && !slices.Contains(mw.GetScopes(r), models.ScopeAdmin) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
			return
		}

		body, err := sjson.SetBytes(doc.Body, "analysisId", doc.Key)
		if err == nil {
			body, err = sjson.SetBytes(body, "storedAt", doc.CreatedAt.UTC().Format(time.RFC3339))
		}
		if err != nil {
			slog.Error("decorate analysis", "error", err, "analysis_id", id)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		response.Raw(w, http.StatusOK, body)
	}
}

// loadAnalysis reads through the cache. Cache failures fall back to the store.
func loadAnalysis(ctx context.Context, docs DocumentStore, c cache.AnalysisCache, id string) (*models.Document, error) {
	if cached, found, err := c.GetAnalysis(ctx, id); err == nil && found {
		var doc models.Document
		if err := json.Unmarshal(cached, &doc); err == nil {
			return &doc, nil
		}
	}

	doc, err := docs.GetDocument(ctx, models.CollectionAnalyses, id)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(doc); err == nil {
		if err := c.PutAnalysis(ctx, id, encoded); err != nil {
			slog.Warn("cache analysis", "error", err, "analysis_id", id)
		}
	}
	return doc, nil
}

type analysisSummary struct {
	AnalysisID      string `json:"analysisId"`
	StoredAt        string `json:"storedAt"`
	ModelUsed       string `json:"modelUsed"`
	StudiesAnalyzed int64  `json:"studiesAnalyzed"`
}

// NewListAnalysesHandler returns an http.HandlerFunc for
// GET /api/v1/clinical-analysis, listing the caller's newest analyses.
func NewListAnalysesHandler(docs DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := mw.GetCallerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing caller", nil)
			return
		}

		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be between 1 and 100", nil)
				return
			}
			limit = n
		}

		list, err := docs.ListDocuments(r.Context(), store.DocumentFilter{
			Collection: models.CollectionAnalyses,
			Owner:      callerID.String(),
			Limit:      limit,
		})
		if err != nil {
			slog.Error("list analyses", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		items := make([]analysisSummary, 0, len(list))
		for _, doc := range list {
			fields := gjson.GetManyBytes(doc.Body, "modelUsed", "studiesAnalyzed")
			items = append(items, analysisSummary{
				AnalysisID:      doc.Key,
				StoredAt:        doc.CreatedAt.UTC().Format(time.RFC3339),
				ModelUsed:       fields[0].String(),
				StudiesAnalyzed: fields[1].Int(),
			})
		}

		response.JSON(w, map[string]any{
			"analyses": items,
			"count":    len(items),
		})
	}
}
