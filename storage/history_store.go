package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/knowledgevault/vault/models"
)

// HistoryStore persists chat exchanges in a SQLite database under the
// storage directory. It is safe for concurrent use; database/sql handles
// connection serialization.
type HistoryStore struct {
	db *sql.DB
}

// OpenHistoryStore opens (and if needed creates) the vault database in
// storageDir and ensures the chat_entries table exists.
func OpenHistoryStore(storageDir string) (*HistoryStore, error) {
	dbPath := filepath.Join(storageDir, "vault.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not open database %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not reach database %s: %w", dbPath, err)
	}

	// seq gives a monotonic insertion order, so entries created within the
	// same millisecond still come back in the order they were appended.
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS chat_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chat_entries_created_at ON chat_entries(created_at);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create chat_entries table: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Append stores a chat entry. A missing ID or timestamp is filled in.
func (s *HistoryStore) Append(ctx context.Context, entry models.ChatEntry) (models.ChatEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	sourcesJSON, err := json.Marshal(entry.Sources)
	if err != nil {
		return models.ChatEntry{}, fmt.Errorf("could not encode sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_entries (id, created_at, question, answer, sources) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixMilli(), entry.Question, entry.Answer, string(sourcesJSON),
	)
	if err != nil {
		return models.ChatEntry{}, fmt.Errorf("could not insert chat entry: %w", err)
	}
	return entry, nil
}

// Recent returns the last n entries in chronological order. n <= 0 returns
// the full history.
func (s *HistoryStore) Recent(ctx context.Context, n int) ([]models.ChatEntry, error) {
	query := `SELECT id, created_at, question, answer, sources FROM chat_entries ORDER BY seq DESC`
	args := []any{}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query chat entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ChatEntry
	for rows.Next() {
		var (
			entry       models.ChatEntry
			createdAt   int64
			sourcesJSON sql.NullString
		)
		if err := rows.Scan(&entry.ID, &createdAt, &entry.Question, &entry.Answer, &sourcesJSON); err != nil {
			return nil, fmt.Errorf("could not scan chat entry: %w", err)
		}
		entry.Timestamp = time.UnixMilli(createdAt)
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &entry.Sources); err != nil {
				return nil, fmt.Errorf("could not decode sources for entry %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive newest-first; flip to chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// All returns the complete history in chronological order.
func (s *HistoryStore) All(ctx context.Context) ([]models.ChatEntry, error) {
	return s.Recent(ctx, 0)
}

// Count returns the number of stored entries.
func (s *HistoryStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("could not count chat entries: %w", err)
	}
	return count, nil
}

// Clear removes all history entries.
func (s *HistoryStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_entries`); err != nil {
		return fmt.Errorf("could not clear chat entries: %w", err)
	}
	return nil
}

// ExportText renders entries as a plain-text transcript: Q/A blocks with
// their sources, separated by a dashed line.
func ExportText(entries []models.ChatEntry) string {
	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString("Q: " + entry.Question + "\n")
		sb.WriteString("A: " + entry.Answer + "\n")
		if len(entry.Sources) > 0 {
			sb.WriteString("Sources:\n")
			for _, src := range entry.Sources {
				sb.WriteString("  - " + src.Source + "\n")
			}
		}
		sb.WriteString(strings.Repeat("-", 50) + "\n")
	}
	return sb.String()
}

// ExportJSON renders entries as an indented JSON array.
func ExportJSON(entries []models.ChatEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.ChatEntry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}
