package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knowledgevault/vault/models"
)

// DocumentStore handles the document files under the data directory:
// saving uploads, deleting sources, and reporting file metadata.
type DocumentStore struct {
	DataDir     string // absolute path to the data directory
	MaxFileSize int64  // upload size limit in bytes
}

// NewDocumentStore creates a store rooted at dataDir.
func NewDocumentStore(dataDir string, maxFileSize int64) (*DocumentStore, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for data directory: %w", err)
	}
	return &DocumentStore{DataDir: absPath, MaxFileSize: maxFileSize}, nil
}

// SanitizeFilename strips unsafe characters from an uploaded filename and
// resolves it inside the data directory. This prevents path traversal
// (e.g. filename = "../../../etc/passwd").
func (ds *DocumentStore) SanitizeFilename(filename string) (string, error) {
	base := filepath.Base(filename)

	var sb strings.Builder
	for _, c := range base {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '.' || c == '_' || c == '-' || c == ' ' {
			sb.WriteRune(c)
		}
	}
	safe := strings.TrimSpace(sb.String())
	if safe == "" || strings.Trim(safe, ".") == "" {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	if !IsSupportedFile(safe) {
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(safe))
	}

	cleanPath := filepath.Join(ds.DataDir, safe)
	if !strings.HasPrefix(cleanPath, ds.DataDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid filename, attempts to escape data directory")
	}
	return cleanPath, nil
}

// SaveUpload writes an uploaded document into the data directory and returns
// its path. Uploads over the size limit are rejected and nothing is kept.
func (ds *DocumentStore) SaveUpload(filename string, r io.Reader) (string, error) {
	path, err := ds.SanitizeFilename(filename)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("could not create file %s: %w", path, err)
	}
	defer f.Close()

	// Copy one byte past the limit so an oversized upload is detectable.
	n, err := io.Copy(f, io.LimitReader(r, ds.MaxFileSize+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("could not write file %s: %w", path, err)
	}
	if n > ds.MaxFileSize {
		os.Remove(path)
		return "", fmt.Errorf("file %s exceeds the %d MB size limit", filepath.Base(path), ds.MaxFileSize/(1024*1024))
	}
	return path, nil
}

// Delete removes a document from the data directory.
func (ds *DocumentStore) Delete(filename string) error {
	path, err := ds.SanitizeFilename(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("could not delete file %s: %w", filename, err)
	}
	return nil
}

// Info returns metadata for a stored document.
func (ds *DocumentStore) Info(filename string) (models.FileInfo, error) {
	path, err := ds.SanitizeFilename(filename)
	if err != nil {
		return models.FileInfo{}, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return models.FileInfo{}, fmt.Errorf("could not read file info for %s: %w", filename, err)
	}
	return models.FileInfo{
		Name:      filepath.Base(path),
		Size:      stat.Size(),
		SizeMB:    float64(stat.Size()) / (1024 * 1024),
		Extension: strings.ToLower(filepath.Ext(path)),
		Modified:  stat.ModTime(),
	}, nil
}
