package models

import (
	"io"
	"regexp"
)

// ContentTypePDF is the only artifact content type the gateway serves.
const ContentTypePDF = "application/pdf"

var reportIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidReportID reports whether id is a lowercase-hex 8-4-4-4-12 UUID.
func ValidReportID(id string) bool {
	return reportIDPattern.MatchString(id)
}

// Artifact is a resolved report stream. The caller must close Body.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when the source does not report a length.
	Size int64
	// Source names where the artifact was found: "remote" or the fallback
	// candidate name.
	Source string
}
