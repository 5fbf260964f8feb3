package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgevault/vault/models"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := OpenHistoryStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Append(context.Background(), models.ChatEntry{
		Question: "What is AI?",
		Answer:   "Artificial intelligence.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestRecent_ChronologicalOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"first", "second", "third"} {
		_, err := store.Append(ctx, models.ChatEntry{
			Question:  q,
			Answer:    "answer " + q,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Question)
	assert.Equal(t, "third", entries[1].Question)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Question)
}

func TestRecent_StableOrderForSameTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stamp := time.Now()
	for _, q := range []string{"first", "second", "third"} {
		_, err := store.Append(ctx, models.ChatEntry{
			Question:  q,
			Answer:    "answer " + q,
			Timestamp: stamp,
		})
		require.NoError(t, err)
	}

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Question)
	assert.Equal(t, "second", all[1].Question)
	assert.Equal(t, "third", all[2].Question)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Question)
	assert.Equal(t, "third", recent[1].Question)
}

func TestSources_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, models.ChatEntry{
		Question: "q",
		Answer:   "a",
		Sources: []models.Source{
			{Content: "preview...", Source: "notes.pdf", Chunk: 2},
		},
	})
	require.NoError(t, err)

	entries, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Sources, 1)
	assert.Equal(t, "notes.pdf", entries[0].Sources[0].Source)
	assert.Equal(t, 2, entries[0].Sources[0].Chunk)
}

func TestClearAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, models.ChatEntry{Question: "q", Answer: "a"})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Clear(ctx))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExportText(t *testing.T) {
	entries := []models.ChatEntry{
		{
			Question: "What is AI?",
			Answer:   "Machines that learn.",
			Sources:  []models.Source{{Source: "intro.md"}},
		},
	}

	out := ExportText(entries)
	assert.Contains(t, out, "Q: What is AI?")
	assert.Contains(t, out, "A: Machines that learn.")
	assert.Contains(t, out, "  - intro.md")
	assert.Contains(t, out, strings.Repeat("-", 50))
}

func TestExportJSON(t *testing.T) {
	entries := []models.ChatEntry{{ID: "1", Question: "q", Answer: "a"}}

	out, err := ExportJSON(entries)
	require.NoError(t, err)

	var decoded []models.ChatEntry
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "q", decoded[0].Question)
}
