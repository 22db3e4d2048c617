// Package models contains shared data models used across the OrthoGate codebase.
package models

import "encoding/json"

// Triage severity levels as reported by the dashboard. The set is owned by the
// analysis engine; the gateway only requires that a level is present.
const (
	TriageLevelRoutine   = "routine"
	TriageLevelUrgent    = "urgent"
	TriageLevelEmergency = "emergency"
)

// AnalysisRequest asks the clinical-analysis engine to analyze a batch of
// studies belonging to one patient.
type AnalysisRequest struct {
	PatientID string        `json:"patientId"`
	Studies   []StudyRecord `json:"studies"`
}

// StudyRecord is one uploaded imaging study with its AI triage result.
// Pointer and nil-slice fields are optional on input.
type StudyRecord struct {
	ID              string        `json:"id"`
	Date            string        `json:"date"`
	BodyPart        string        `json:"bodyPart"`
	Symptoms        *string       `json:"symptoms,omitempty"`
	Triage          *TriageResult `json:"triage"`
	PatientSummary  *string       `json:"patientSummary,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
}

// TriageResult is the per-study triage produced by the upload pipeline.
type TriageResult struct {
	Level           string      `json:"level"`
	BodyPart        *string     `json:"bodyPart,omitempty"`
	Detections      []Detection `json:"detections,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

// Detection is a single labelled finding. Confidence is in [0, 1].
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	BBox       *[4]float64 `json:"bbox,omitempty"`
}

// AnalysisOutcome is the engine's result for one AnalysisRequest.
// Analysis is passed through uninterpreted.
type AnalysisOutcome struct {
	Success           bool            `json:"success"`
	StudiesAnalyzed   int             `json:"studiesAnalyzed"`
	Analysis          json.RawMessage `json:"analysis"`
	AnalysisTimestamp string          `json:"analysisTimestamp"`
	ModelUsed         string          `json:"modelUsed"`
}
