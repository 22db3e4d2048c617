package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/orthogate/internal/transport"
	"github.com/kiranshivaraju/orthogate/pkg/models"
	"github.com/tidwall/gjson"
)

const analysisService = "analysis service"

// Wire shapes for the analysis engine. Every field is always emitted.

type analyzeRequest struct {
	PatientID string         `json:"patient_id"`
	Studies   []analyzeStudy `json:"studies"`
}

type analyzeStudy struct {
	ID              string        `json:"id"`
	Date            string        `json:"date"`
	BodyPart        string        `json:"body_part"`
	Symptoms        string        `json:"symptoms"`
	Triage          analyzeTriage `json:"triage"`
	PatientSummary  string        `json:"patient_summary"`
	Recommendations []string      `json:"recommendations"`
}

type analyzeTriage struct {
	Level           string             `json:"level"`
	BodyPart        string             `json:"body_part"`
	Detections      []analyzeDetection `json:"detections"`
	Recommendations []string           `json:"recommendations"`
}

type analyzeDetection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       *[4]float64 `json:"bbox,omitempty"`
}

type analyzeEnvelope struct {
	Success           bool            `json:"success"`
	StudiesAnalyzed   int             `json:"studies_analyzed"`
	Analysis          json.RawMessage `json:"analysis"`
	AnalysisTimestamp string          `json:"analysis_timestamp"`
	ModelUsed         string          `json:"model_used"`
}

// validateAnalysis checks the preconditions of a forward call.
func validateAnalysis(req *models.AnalysisRequest) *Error {
	if req == nil {
		return validationError("request body is required")
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return validationError("patientId is required")
	}
	if len(req.Studies) == 0 {
		return validationError("at least one study is required")
	}
	for i, study := range req.Studies {
		if study.Triage == nil || strings.TrimSpace(study.Triage.Level) == "" {
			return validationError("studies[%d]: triage level is required", i)
		}
		for j, d := range study.Triage.Detections {
			if d.Confidence < 0 || d.Confidence > 1 {
				return validationError("studies[%d].triage.detections[%d]: confidence %v is outside [0, 1]", i, j, d.Confidence)
			}
		}
	}
	return nil
}

// normalizeAnalysis fills every optional field with its empty or derived
// value. req must already be valid.
func normalizeAnalysis(req *models.AnalysisRequest) analyzeRequest {
	out := analyzeRequest{
		PatientID: strings.TrimSpace(req.PatientID),
		Studies:   make([]analyzeStudy, 0, len(req.Studies)),
	}

	for _, s := range req.Studies {
		triage := analyzeTriage{
			Level:           s.Triage.Level,
			BodyPart:        s.BodyPart,
			Detections:      make([]analyzeDetection, 0, len(s.Triage.Detections)),
			Recommendations: orEmpty(s.Triage.Recommendations),
		}
		if s.Triage.BodyPart != nil && *s.Triage.BodyPart != "" {
			triage.BodyPart = *s.Triage.BodyPart
		}
		for _, d := range s.Triage.Detections {
			triage.Detections = append(triage.Detections, analyzeDetection{
				Label:      d.Label,
				Confidence: d.Confidence,
				BBox:       d.BBox,
			})
		}

		out.Studies = append(out.Studies, analyzeStudy{
			ID:              s.ID,
			Date:            s.Date,
			BodyPart:        s.BodyPart,
			Symptoms:        deref(s.Symptoms),
			Triage:          triage,
			PatientSummary:  deref(s.PatientSummary),
			Recommendations: orEmpty(s.Recommendations),
		})
	}
	return out
}

// forward issues the single analysis call and maps the envelope.
func (g *Gateway) forward(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisOutcome, error) {
	if gwErr := validateAnalysis(req); gwErr != nil {
		return nil, gwErr
	}

	payload, err := json.Marshal(normalizeAnalysis(req))
	if err != nil {
		return nil, &Error{Kind: KindProcessingFailed, Message: "encoding analysis request", Err: err}
	}

	resp, err := g.client.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		URL:         g.cfg.BaseURL + "/api/clinical-analysis/analyze-patient",
		Body:        payload,
		ContentType: "application/json",
		Accept:      "application/json",
		Timeout:     g.cfg.AnalysisTimeout,
	})
	if err != nil {
		return nil, translateError(analysisService, err)
	}

	body, gwErr := readJSON(analysisService, resp)
	if gwErr != nil {
		return nil, gwErr
	}
	// readJSON already rejected an explicit false; a missing flag is no better.
	if gjson.GetBytes(body, "success").Type != gjson.True {
		return nil, &Error{
			Kind:    KindProcessingFailed,
			Message: fmt.Sprintf("%s response is missing a success flag", analysisService),
		}
	}

	var env analyzeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{
			Kind:    KindProcessingFailed,
			Message: fmt.Sprintf("%s returned an unexpected envelope", analysisService),
			Err:     err,
		}
	}

	return &models.AnalysisOutcome{
		Success:           env.Success,
		StudiesAnalyzed:   env.StudiesAnalyzed,
		Analysis:          env.Analysis,
		AnalysisTimestamp: env.AnalysisTimestamp,
		ModelUsed:         env.ModelUsed,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
