package models

type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
	ChatID  string   `json:"chat_id"`
}

// SourcesResponse lists the unique document sources in the knowledge base.
// Files carries on-disk metadata for the sources still present in the data
// directory.
type SourcesResponse struct {
	Sources    []string   `json:"sources"`
	Files      []FileInfo `json:"files"`
	ChunkCount int        `json:"chunk_count"`
}

type HistoryResponse struct {
	Count   int         `json:"count"`
	Entries []ChatEntry `json:"entries"`
}
