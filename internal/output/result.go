package output

import (
	"time"
)

// Record is one reporting row: a fetched resource reduced to the
// columns the run was asked to capture.
type Record struct {
	URL     string            `json:"url"`
	Domain  string            `json:"domain"`
	Type    string            `json:"type"`
	Headers map[string]string `json:"headers,omitempty"`
	Tag     string            `json:"tag,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// RunResult represents the complete result of a crawl run.
type RunResult struct {
	Seeds       []string  `json:"seeds"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Stats       RunStats  `json:"stats"`
	Records     []*Record `json:"records"`
}

// RunStats contains statistics about the run.
type RunStats struct {
	SeedsProcessed    int           `json:"seeds_processed"`
	ChildrenFetched   int           `json:"children_fetched"`
	UniqueFetches     int           `json:"unique_fetches"`
	RecordCount       int           `json:"record_count"`
	BadLinks          int           `json:"bad_links"`
	Errors            int           `json:"errors"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	ExternalsSkipped  int           `json:"externals_skipped"`
	CacheHits         int           `json:"cache_hits"`
	BytesTransferred  int64         `json:"bytes_transferred"`
	Duration          time.Duration `json:"duration"`
}
