package cache

import "fmt"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// AnalysisKey caches a persisted analysis outcome by its document key.
func AnalysisKey(analysisID string) string {
	return fmt.Sprintf("analysis:%s", analysisID)
}
