package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

// chunkMetadata is the metadata attached to every chunk in the collection.
type chunkMetadata struct {
	Source     string
	SourceFile string
	FileHash   string
	FileType   string
	AddedDate  string
	ChunkNum   int
}

// chunkStore is the slice of the vector store the indexer needs: add chunks,
// drop them by file path or source name, and report which files are indexed
// under which content hash.
type chunkStore interface {
	addChunk(ctx context.Context, id, text string, vector []float32, meta chunkMetadata) error
	deleteByFilepath(ctx context.Context, path string) error
	deleteBySource(ctx context.Context, name string) error
	indexState(ctx context.Context) (map[string]indexState, error)
}

// IndexingService handles scanning, chunking, and embedding documents into
// the vector collection. Indexing is serialized per file path, so the upload
// handler and the directory watcher can both report the same file without
// duplicating its chunks.
type IndexingService struct {
	store        chunkStore
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger

	mu        sync.Mutex
	pathLocks map[string]*sync.Mutex
	lastHash  map[string]string // path -> content hash last indexed
}

// NewIndexingService creates a new indexing service over a chroma collection.
func NewIndexingService(collection chromago.Collection, embedder Embedder, chunkSize, chunkOverlap int, logger *zap.Logger) *IndexingService {
	return newIndexingService(&chromaChunkStore{collection: collection}, embedder, chunkSize, chunkOverlap, logger)
}

func newIndexingService(store chunkStore, embedder Embedder, chunkSize, chunkOverlap int, logger *zap.Logger) *IndexingService {
	return &IndexingService{
		store:        store,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
		pathLocks:    make(map[string]*sync.Mutex),
		lastHash:     make(map[string]string),
	}
}

// indexState holds the current hash of a file in the index.
type indexState struct {
	Hash string
}

// IndexFile extracts, chunks, and embeds a single document. A file whose
// content hash matches the last indexed version is skipped; otherwise chunks
// from the previous version are dropped first. Calls for the same path are
// serialized.
func (s *IndexingService) IndexFile(ctx context.Context, path string) error {
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()
	return s.indexLocked(ctx, path)
}

// indexLocked does the actual work; the caller must hold the path lock.
func (s *IndexingService) indexLocked(ctx context.Context, path string) error {
	hash, err := calculateFileHash(path)
	if err != nil {
		return fmt.Errorf("could not hash file %s: %w", path, err)
	}
	if s.knownHash(path) == hash {
		s.logger.Info("file already indexed, skipping", zap.String("path", path))
		return nil
	}
	if err := s.store.deleteByFilepath(ctx, path); err != nil {
		return fmt.Errorf("could not drop old chunks of %s: %w", path, err)
	}
	s.forgetHash(path)
	if err := s.processAndEmbedFile(ctx, path, hash); err != nil {
		return err
	}
	s.rememberHash(path, hash)
	return nil
}

// removeFile drops a file's chunks and forgets its hash.
func (s *IndexingService) removeFile(ctx context.Context, path string) error {
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()
	s.forgetHash(path)
	return s.store.deleteByFilepath(ctx, path)
}

// WatchDirectory starts a long-running process to watch for file changes in real-time.
func (s *IndexingService) WatchDirectory(ctx context.Context, dirPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("failed to create file watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !IsSupportedFile(event.Name) {
					continue
				}

				// Many editors write by creating a temp file and renaming,
				// which can trigger multiple events. Create and Write are
				// handled the same way; the hash check in IndexFile turns
				// redundant events into no-ops.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.logger.Info("file modified, re-indexing", zap.String("path", event.Name))
					if err := s.IndexFile(ctx, event.Name); err != nil {
						s.logger.Error("failed to index file", zap.String("path", event.Name), zap.Error(err))
					}
				} else if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					s.logger.Info("file removed, dropping from index", zap.String("path", event.Name))
					if err := s.removeFile(ctx, event.Name); err != nil {
						s.logger.Error("failed to drop records", zap.String("path", event.Name), zap.Error(err))
					}
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("watcher error", zap.Error(err))
			case <-ctx.Done():
				s.logger.Info("watcher shutting down")
				return
			}
		}
	}()

	s.logger.Info("watching directory", zap.String("dir", dirPath))
	if err := watcher.Add(dirPath); err != nil {
		s.logger.Error("failed to add path to watcher", zap.String("dir", dirPath), zap.Error(err))
	}

	<-ctx.Done()
}

// ScanAndIndexDirectory syncs the directory with the vector collection:
// new and changed files are (re-)indexed, records of deleted files dropped.
func (s *IndexingService) ScanAndIndexDirectory(ctx context.Context, dirPath string) {
	s.logger.Info("starting directory scan", zap.String("dir", dirPath))

	indexedFiles, err := s.store.indexState(ctx)
	if err != nil {
		s.logger.Error("could not get current index state", zap.Error(err))
		return
	}
	s.logger.Info("index state loaded", zap.Int("files", len(indexedFiles)))

	localFiles := make(map[string]bool)
	err = filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !IsSupportedFile(path) {
			return nil
		}
		localFiles[path] = true

		lock := s.pathLock(path)
		lock.Lock()
		defer lock.Unlock()

		hash, err := calculateFileHash(path)
		if err != nil {
			s.logger.Warn("could not hash file", zap.String("path", path), zap.Error(err))
			return nil
		}
		if state, ok := indexedFiles[path]; ok && state.Hash == hash {
			s.rememberHash(path, hash)
			return nil // unchanged
		}

		s.logger.Info("indexing new or modified file", zap.String("path", path))
		if err := s.indexLocked(ctx, path); err != nil {
			s.logger.Error("failed to process file", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("error walking directory", zap.String("dir", dirPath), zap.Error(err))
	}

	// Handle deletions
	for path := range indexedFiles {
		if !localFiles[path] {
			s.logger.Info("file deleted, dropping from index", zap.String("path", path))
			if err := s.removeFile(ctx, path); err != nil {
				s.logger.Error("failed to drop records", zap.String("path", path), zap.Error(err))
			}
		}
	}
	s.logger.Info("directory scan finished")
}

func (s *IndexingService) processAndEmbedFile(ctx context.Context, path, hash string) error {
	content, err := ExtractTextFromFile(path)
	if err != nil {
		return err
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
	)
	chunks, err := splitter.SplitText(content)
	if err != nil {
		return err
	}
	s.logger.Info("split file into chunks", zap.String("path", path), zap.Int("chunks", len(chunks)))

	addedDate := time.Now().Format(time.RFC3339)
	for i, chunk := range chunks {
		embeddingVector, err := s.embedder.EmbedText(ctx, chunk)
		if err != nil {
			return fmt.Errorf("could not embed chunk %d of %s: %w", i, path, err)
		}
		id := fmt.Sprintf("%s-chunk%d", uuid.New().String(), i)
		meta := chunkMetadata{
			Source:     filepath.Base(path),
			SourceFile: path,
			FileHash:   hash,
			FileType:   filepath.Ext(path),
			AddedDate:  addedDate,
			ChunkNum:   i,
		}
		if err := s.store.addChunk(ctx, id, chunk, embeddingVector, meta); err != nil {
			return fmt.Errorf("failed to add chunk %d of %s to chromadb: %w", i, path, err)
		}
	}
	return nil
}

// RemoveSource drops every chunk whose source document has the given
// base filename.
func (s *IndexingService) RemoveSource(ctx context.Context, name string) error {
	if err := s.store.deleteBySource(ctx, name); err != nil {
		return err
	}
	// Forget any path whose base name matches, so a later re-upload
	// is not mistaken for an unchanged file.
	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.lastHash {
		if filepath.Base(path) == name {
			delete(s.lastHash, path)
		}
	}
	return nil
}

// pathLock returns the mutex serializing index operations for path.
func (s *IndexingService) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pathLocks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.pathLocks[path] = lock
	}
	return lock
}

func (s *IndexingService) knownHash(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash[path]
}

func (s *IndexingService) rememberHash(path, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHash[path] = hash
}

func (s *IndexingService) forgetHash(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastHash, path)
}

// chromaChunkStore implements chunkStore over a chroma collection using the
// v2 API.
type chromaChunkStore struct {
	collection chromago.Collection
}

func (c *chromaChunkStore) addChunk(ctx context.Context, id, text string, vector []float32, meta chunkMetadata) error {
	embedding := embeddings.NewEmbeddingFromFloat32(vector)
	metadata := chromago.NewDocumentMetadata(
		chromago.NewStringAttribute("source", meta.Source),
		chromago.NewStringAttribute("source_file", meta.SourceFile),
		chromago.NewStringAttribute("file_hash", meta.FileHash),
		chromago.NewStringAttribute("file_type", meta.FileType),
		chromago.NewStringAttribute("added_date", meta.AddedDate),
		chromago.NewIntAttribute("chunk_num", int64(meta.ChunkNum)),
	)
	return c.collection.Add(ctx,
		chromago.WithIDs(chromago.DocumentID(id)),
		chromago.WithTexts(text),
		chromago.WithEmbeddings(embedding),
		chromago.WithMetadatas(metadata),
	)
}

func (c *chromaChunkStore) deleteByFilepath(ctx context.Context, path string) error {
	where := chromago.EqString("source_file", path)
	return c.collection.Delete(ctx, chromago.WithWhereDelete(where))
}

func (c *chromaChunkStore) deleteBySource(ctx context.Context, name string) error {
	where := chromago.EqString("source", name)
	return c.collection.Delete(ctx, chromago.WithWhereDelete(where))
}

func (c *chromaChunkStore) indexState(ctx context.Context) (map[string]indexState, error) {
	state := make(map[string]indexState)
	results, err := c.collection.Get(ctx)
	if err != nil {
		return nil, err
	}
	for _, meta := range results.GetMetadatas() {
		if meta == nil {
			continue
		}
		metaMap, err := metadataToMap(meta)
		if err != nil {
			continue
		}
		path, ok := metaMap["source_file"].(string)
		if !ok {
			continue
		}
		hash, ok := metaMap["file_hash"].(string)
		if !ok {
			continue
		}
		if _, exists := state[path]; !exists {
			state[path] = indexState{Hash: hash}
		}
	}
	return state, nil
}

// metadataToMap converts chroma document metadata into a plain map. The
// DocumentMetadata type has no public accessor for all values, so it goes
// through a JSON round trip.
func metadataToMap(meta chromago.DocumentMetadata) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	var metaMap map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &metaMap); err != nil {
		return nil, err
	}
	return metaMap, nil
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
