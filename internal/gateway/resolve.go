package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kiranshivaraju/orthogate/internal/transport"
	"github.com/kiranshivaraju/orthogate/pkg/models"
)

const reportService = "report service"

// SourceRemote names the primary artifact store in Artifact.Source.
const SourceRemote = "remote"

// fallbackTemplates are tried in order against the fallback source.
var fallbackTemplates = []string{
	"orthoassist_report_%s.pdf",
	"report_%s.pdf",
	"%s.pdf",
}

// FallbackCandidates returns the fallback file names for id, in lookup order.
func FallbackCandidates(id string) []string {
	names := make([]string, len(fallbackTemplates))
	for i, tmpl := range fallbackTemplates {
		names[i] = fmt.Sprintf(tmpl, id)
	}
	return names
}

// resolve finds the report for id, remote first, then the fallback source.
func (g *Gateway) resolve(ctx context.Context, id string) (*models.Artifact, error) {
	if !models.ValidReportID(id) {
		return nil, &Error{
			Kind:    KindInvalidIdentifier,
			Message: fmt.Sprintf("invalid report id %q", id),
		}
	}

	a, err := g.fetchRemote(ctx, id)
	if err == nil {
		return a, nil
	}
	g.logger.Warn("primary report fetch failed, trying fallback",
		"report_id", id,
		"error", err,
	)

	if a, ok := g.fetchFallback(ctx, id); ok {
		return a, nil
	}

	return nil, &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("report %s not found", id),
	}
}

func (g *Gateway) fetchRemote(ctx context.Context, id string) (*models.Artifact, error) {
	resp, err := g.client.Do(ctx, transport.Request{
		Method:      http.MethodGet,
		URL:         fmt.Sprintf("%s/api/reports/%s/download", g.cfg.BaseURL, id),
		Accept:      models.ContentTypePDF,
		Timeout:     g.cfg.ReportTimeout,
		IdleTimeout: g.cfg.ReportIdleTimeout,
	})
	if err != nil {
		return nil, translateError(reportService, err)
	}

	return &models.Artifact{
		Body:        resp.Body,
		ContentType: models.ContentTypePDF,
		Size:        resp.ContentLength,
		Source:      SourceRemote,
	}, nil
}

// fetchFallback tries each candidate in order. Any error, absent or not,
// moves on to the next candidate.
func (g *Gateway) fetchFallback(ctx context.Context, id string) (*models.Artifact, bool) {
	if g.fallback == nil {
		return nil, false
	}

	for _, name := range FallbackCandidates(id) {
		obj, err := g.fallback.Open(ctx, name)
		if err != nil {
			g.logger.Debug("fallback candidate unavailable",
				"report_id", id,
				"source", g.fallback.Name(),
				"candidate", name,
				"error", err,
			)
			continue
		}

		g.logger.Info("report served from fallback",
			"report_id", id,
			"source", g.fallback.Name(),
			"candidate", name,
		)
		return &models.Artifact{
			Body:        obj.Body,
			ContentType: models.ContentTypePDF,
			Size:        obj.Size,
			Source:      g.fallback.Name() + ":" + name,
		}, true
	}
	return nil, false
}
