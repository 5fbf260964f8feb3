package models

import "time"

// FileInfo describes a document stored in the data directory.
type FileInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SizeMB    float64   `json:"size_mb"`
	Extension string    `json:"extension"`
	Modified  time.Time `json:"modified"`
}

// IngestResult summarizes a batch document upload: how many files made it
// into the index and what went wrong with the rest.
type IngestResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
