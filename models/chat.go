package models

import "time"

// Source is a citation attached to an answer: where a retrieved chunk came
// from and a short preview of its content.
type Source struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Chunk   int    `json:"chunk,omitempty"`
}

// ChatEntry is one question/answer exchange, persisted in the history store.
type ChatEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources,omitempty"`
}
