package models

import (
	"encoding/json"
	"time"
)

// CollectionAnalyses holds persisted AnalysisOutcome documents.
const CollectionAnalyses = "analyses"

// Document is a JSON body stored under (Collection, Key).
type Document struct {
	Collection string          `db:"collection" json:"collection"`
	Key        string          `db:"key"        json:"key"`
	Owner      string          `db:"owner"      json:"owner"`
	Body       json.RawMessage `db:"body"       json:"body"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}
