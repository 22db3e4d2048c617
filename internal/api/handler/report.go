package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/orthogate/internal/api/middleware"
	"github.com/kiranshivaraju/orthogate/internal/api/response"
	"github.com/kiranshivaraju/orthogate/pkg/models"
)

// ReportDownloader resolves a report PDF by id.
type ReportDownloader interface {
	DownloadReport(ctx context.Context, reportID string) (*models.Artifact, error)
}

// NewReportDownloadHandler returns an http.HandlerFunc for
// GET /api/v1/reports/{reportID}/download.
func NewReportDownloadHandler(svc ReportDownloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reportID := chi.URLParam(r, "reportID")

		artifact, err := svc.DownloadReport(r.Context(), reportID)
		if err != nil {
			response.GatewayError(w, err)
			return
		}
		defer artifact.Body.Close()

		h := w.Header()
		h.Set("Content-Type", artifact.ContentType)
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.pdf"`, reportID))
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		if artifact.Size >= 0 {
			h.Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
		}
		w.WriteHeader(http.StatusOK)

		n, err := io.Copy(w, artifact.Body)
		if err != nil {
			slog.Warn("report stream interrupted",
				"report_id", reportID,
				"source", artifact.Source,
				"bytes", n,
				"error", err,
				"request_id", mw.GetRequestID(r.Context()),
			)
			// Drop the connection so the client cannot mistake a short body for a whole one.
			panic(http.ErrAbortHandler)
		}
		slog.Debug("report served", "report_id", reportID, "source", artifact.Source, "bytes", n)
	}
}
