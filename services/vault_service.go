package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/knowledgevault/vault/models"
	"github.com/knowledgevault/vault/storage"
)

// sourcePreviewLen caps the cited content preview attached to each answer.
const sourcePreviewLen = 200

// VaultService is the knowledge vault's application surface: document
// ingestion, retrieval-augmented question answering with chat memory, and
// history management.
type VaultService interface {
	IngestDocument(ctx context.Context, filename string, r io.Reader) error
	RemoveDocument(ctx context.Context, name string) error
	ListSources(ctx context.Context) (*models.SourcesResponse, error)
	DocumentCount(ctx context.Context) (int, error)

	Query(ctx context.Context, question string) (*models.QueryResponse, error)

	History(ctx context.Context, limit int) ([]models.ChatEntry, error)
	ClearHistory(ctx context.Context) error
}

// VaultOptions carries the tunables the service needs from configuration.
type VaultOptions struct {
	LLMModel            string
	Temperature         float64
	RetrievalK          int
	ChatContextMessages int
	ChatContextTokens   int
}

// vaultServiceImpl holds the dependencies the vault needs to do its job.
type vaultServiceImpl struct {
	collection   chromago.Collection
	geminiClient *genai.Client
	embedder     Embedder
	documents    *DocumentStore
	indexer      *IndexingService
	history      *storage.HistoryStore
	tokens       *TokenCounter
	opts         VaultOptions
	logger       *zap.Logger
}

// NewVaultService creates the vault service. A nil token counter disables
// the token cap on chat context (message count still applies).
func NewVaultService(
	collection chromago.Collection,
	geminiClient *genai.Client,
	embedder Embedder,
	documents *DocumentStore,
	indexer *IndexingService,
	history *storage.HistoryStore,
	tokens *TokenCounter,
	opts VaultOptions,
	logger *zap.Logger,
) VaultService {
	return &vaultServiceImpl{
		collection:   collection,
		geminiClient: geminiClient,
		embedder:     embedder,
		documents:    documents,
		indexer:      indexer,
		history:      history,
		tokens:       tokens,
		opts:         opts,
		logger:       logger,
	}
}

// IngestDocument saves an uploaded file into the data directory and indexes it.
func (v *vaultServiceImpl) IngestDocument(ctx context.Context, filename string, r io.Reader) error {
	path, err := v.documents.SaveUpload(filename, r)
	if err != nil {
		return err
	}
	v.logger.Info("document saved", zap.String("path", path))

	if err := v.indexer.IndexFile(ctx, path); err != nil {
		return fmt.Errorf("could not index %s: %w", filename, err)
	}
	return nil
}

// RemoveDocument drops a document's chunks from the collection and deletes
// the file from the data directory.
func (v *vaultServiceImpl) RemoveDocument(ctx context.Context, name string) error {
	if err := v.indexer.RemoveSource(ctx, name); err != nil {
		return fmt.Errorf("could not remove chunks for %s: %w", name, err)
	}
	if err := v.documents.Delete(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ListSources returns the unique document names in the knowledge base, file
// metadata for those still on disk, and the total chunk count.
func (v *vaultServiceImpl) ListSources(ctx context.Context) (*models.SourcesResponse, error) {
	results, err := v.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents from chromadb: %w", err)
	}

	seen := make(map[string]bool)
	for _, meta := range results.GetMetadatas() {
		if meta == nil {
			continue
		}
		metaMap, err := metadataToMap(meta)
		if err != nil {
			continue
		}
		if source, ok := metaMap["source"].(string); ok {
			seen[source] = true
		}
	}

	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	count, err := v.collection.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items in collection: %w", err)
	}

	// A source can be indexed but already gone from disk; skip those.
	files := make([]models.FileInfo, 0, len(sources))
	for _, name := range sources {
		info, err := v.documents.Info(name)
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	return &models.SourcesResponse{Sources: sources, Files: files, ChunkCount: int(count)}, nil
}

// DocumentCount counts all the document chunks in the collection.
func (v *vaultServiceImpl) DocumentCount(ctx context.Context) (int, error) {
	count, err := v.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

// Query answers a question against the knowledge base: retrieve similar
// chunks, fold recent conversation into the prompt, generate with Gemini,
// and persist the exchange. An empty collection still produces an answer.
func (v *vaultServiceImpl) Query(ctx context.Context, question string) (*models.QueryResponse, error) {
	v.logger.Info("query received", zap.String("question", question))

	chunks, sources, err := v.retrieveDocuments(ctx, question, v.opts.RetrievalK)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve documents: %w", err)
	}

	recent, err := v.history.Recent(ctx, v.opts.ChatContextMessages)
	if err != nil {
		return nil, fmt.Errorf("could not load chat history: %w", err)
	}
	chatContext := FormatChatContext(recent, v.opts.ChatContextMessages, v.opts.ChatContextTokens, v.tokens)

	prompt := BuildPrompt(question, chatContext, FormatRetrievedContext(chunks))

	answer, err := v.generateAnswer(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("could not generate response from gemini: %w", err)
	}

	entry, err := v.history.Append(ctx, models.ChatEntry{
		Question: question,
		Answer:   answer,
		Sources:  sources,
	})
	if err != nil {
		return nil, fmt.Errorf("could not persist chat entry: %w", err)
	}

	return &models.QueryResponse{
		Answer:  answer,
		Sources: sources,
		ChatID:  entry.ID,
	}, nil
}

// History returns the stored exchanges, optionally limited to the most
// recent n.
func (v *vaultServiceImpl) History(ctx context.Context, limit int) ([]models.ChatEntry, error) {
	return v.history.Recent(ctx, limit)
}

// ClearHistory wipes the persisted conversation.
func (v *vaultServiceImpl) ClearHistory(ctx context.Context) error {
	return v.history.Clear(ctx)
}

// retrieveDocuments embeds the query and finds the nResults most similar
// chunks in the collection.
func (v *vaultServiceImpl) retrieveDocuments(ctx context.Context, query string, nResults int) ([]string, []models.Source, error) {
	queryEmbedding, err := v.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed query text: %w", err)
	}
	embedding := embeddings.NewEmbeddingFromFloat32(queryEmbedding)

	results, err := v.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embedding),
		chromago.WithNResults(nResults),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	var (
		chunks  []string
		sources []models.Source
	)
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()

	if len(documentGroups) > 0 {
		for i, doc := range documentGroups[0] {
			text := doc.ContentString()
			if text == "" {
				continue
			}
			chunks = append(chunks, text)

			source := models.Source{Content: previewText(text), Source: "Unknown"}
			if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
				if metaMap, err := metadataToMap(metadataGroups[0][i]); err == nil {
					if name, ok := metaMap["source"].(string); ok {
						source.Source = name
					}
					if chunkNum, ok := metaMap["chunk_num"].(float64); ok {
						source.Chunk = int(chunkNum)
					}
				}
			}
			sources = append(sources, source)
		}
	}

	v.logger.Info("retrieved documents", zap.Int("count", len(chunks)))
	return chunks, sources, nil
}

// generateAnswer sends the assembled prompt to Gemini and collects the text
// parts of the first candidate.
func (v *vaultServiceImpl) generateAnswer(ctx context.Context, prompt string) (string, error) {
	result, err := v.geminiClient.Models.GenerateContent(ctx, v.opts.LLMModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(v.opts.Temperature)),
		SystemInstruction: GetSystemPrompt(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "I'm sorry, I couldn't generate a response.", nil
	}

	var responseText strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	return responseText.String(), nil
}

// previewText returns the first sourcePreviewLen characters of text with an
// ellipsis, respecting rune boundaries.
func previewText(text string) string {
	if utf8.RuneCountInString(text) <= sourcePreviewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:sourcePreviewLen]) + "..."
}
