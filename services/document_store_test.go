package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocumentStore(t *testing.T, maxSize int64) *DocumentStore {
	t.Helper()
	ds, err := NewDocumentStore(t.TempDir(), maxSize)
	require.NoError(t, err)
	return ds
}

func TestSanitizeFilename(t *testing.T) {
	ds := newTestDocumentStore(t, 1024)

	tests := []struct {
		name     string
		input    string
		wantBase string
		wantErr  bool
	}{
		{"plain", "notes.txt", "notes.txt", false},
		{"spaces kept", "my notes.md", "my notes.md", false},
		{"strips shell characters", "no;tes$(x).txt", "notesx.txt", false},
		{"traversal collapses to base", "../../etc/passwd.txt", "passwd.txt", false},
		{"unsupported extension", "binary.exe", "", true},
		{"empty after cleaning", "...", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ds.SanitizeFilename(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase, filepath.Base(path))
			assert.True(t, strings.HasPrefix(path, ds.DataDir))
		})
	}
}

func TestSaveUpload_WritesFile(t *testing.T) {
	ds := newTestDocumentStore(t, 1024)

	path, err := ds.SaveUpload("note.txt", strings.NewReader("some content"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "some content", string(data))
}

func TestSaveUpload_RejectsOversized(t *testing.T) {
	ds := newTestDocumentStore(t, 8)

	_, err := ds.SaveUpload("big.txt", strings.NewReader("this is more than eight bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")

	// Nothing should be left behind.
	entries, err := os.ReadDir(ds.DataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteAndInfo(t *testing.T) {
	ds := newTestDocumentStore(t, 1024)

	_, err := ds.SaveUpload("note.md", strings.NewReader("# heading"))
	require.NoError(t, err)

	info, err := ds.Info("note.md")
	require.NoError(t, err)
	assert.Equal(t, "note.md", info.Name)
	assert.Equal(t, ".md", info.Extension)
	assert.Equal(t, int64(9), info.Size)

	require.NoError(t, ds.Delete("note.md"))
	_, err = ds.Info("note.md")
	assert.Error(t, err)
}
