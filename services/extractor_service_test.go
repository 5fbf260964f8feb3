package services

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedFile(t *testing.T) {
	tests := []struct {
		path      string
		supported bool
	}{
		{"notes.pdf", true},
		{"README.md", true},
		{"todo.txt", true},
		{"report.docx", true},
		{"legacy.DOC", true},
		{"photo.jpg", false},
		{"archive.zip", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.supported, IsSupportedFile(tt.path), tt.path)
	}
}

func TestExtractTextFromFile_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello vault"), 0o644))

	text, err := ExtractTextFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello vault", text)
}

func TestExtractTextFromFile_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody."), 0o644))

	text, err := ExtractTextFromFile(path)
	require.NoError(t, err)
	assert.Contains(t, text, "Body.")
}

func TestExtractTextFromFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50}, 0o644))

	_, err := ExtractTextFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestExtractTextFromFile_Docx(t *testing.T) {
	path := writeTestDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := ExtractTextFromFile(path)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}

func TestExtractTextFromFile_DocxNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("plain bytes, not a zip"), 0o644))

	_, err := ExtractTextFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid docx archive")
}

func writeTestDocx(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return path
}
