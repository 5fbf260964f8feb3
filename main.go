package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/knowledgevault/vault/config"
	"github.com/knowledgevault/vault/controller"
	"github.com/knowledgevault/vault/logging"
	"github.com/knowledgevault/vault/services"
	"github.com/knowledgevault/vault/storage"
)

func main() {
	// Seed a .env template on first run; an existing file is never touched.
	if created, err := config.EnsureEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	} else if created {
		fmt.Println("Created .env template. Set GOOGLE_API_KEY before starting the server.")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("logs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create Chroma client using the v2 API.
	chromaClient, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.ChromaURL))
	if err != nil {
		logger.Fatal("failed to create chroma client", zap.Error(err))
	}
	defer func() {
		if err := chromaClient.Close(); err != nil {
			logger.Warn("failed to close chroma client", zap.Error(err))
		}
	}()

	collection, err := getOrCreateCollection(ctx, chromaClient, "knowledge-vault")
	if err != nil {
		logger.Fatal("failed to get or create collection", zap.Error(err))
	}

	geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.Fatal("failed to create Gemini client", zap.Error(err))
	}
	logger.Info("connected to Google Gemini", zap.String("model", cfg.LLMModel))

	documents, err := services.NewDocumentStore(cfg.DataDir, cfg.MaxFileSizeBytes())
	if err != nil {
		logger.Fatal("failed to create document store", zap.Error(err))
	}

	history, err := storage.OpenHistoryStore(cfg.StorageDir)
	if err != nil {
		logger.Fatal("failed to open history store", zap.Error(err))
	}
	defer history.Close()

	tokens, err := services.GetTokenCounter()
	if err != nil {
		// Chat context falls back to the message-count cap alone.
		logger.Warn("token counter unavailable", zap.Error(err))
	}

	embedder := services.NewGeminiEmbedder(geminiClient, cfg.EmbeddingModel)
	indexer := services.NewIndexingService(collection, embedder, cfg.ChunkSize, cfg.ChunkOverlap, logger)
	vault := services.NewVaultService(collection, geminiClient, embedder, documents, indexer, history, tokens, services.VaultOptions{
		LLMModel:            cfg.LLMModel,
		Temperature:         cfg.Temperature,
		RetrievalK:          cfg.RetrievalK,
		ChatContextMessages: cfg.ChatContextMessages,
		ChatContextTokens:   cfg.ChatContextTokens,
	}, logger)
	vaultController := controller.NewVaultController(vault)

	// Bring the index in line with the data directory, then keep watching it.
	go func() {
		indexer.ScanAndIndexDirectory(ctx, documents.DataDir)
		indexer.WatchDirectory(ctx, documents.DataDir)
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware())

	router.GET("/health", vaultController.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/documents", vaultController.UploadDocuments)
		apiV1.GET("/documents", vaultController.ListDocuments)
		apiV1.DELETE("/documents/:name", vaultController.DeleteDocument)
		apiV1.POST("/query", vaultController.Query)
		apiV1.GET("/history", vaultController.GetHistory)
		apiV1.GET("/history/export", vaultController.ExportHistory)
		apiV1.DELETE("/history", vaultController.ClearHistory)
	}

	addr := "127.0.0.1:" + cfg.Port
	logger.Info("knowledge vault listening", zap.String("addr", "http://"+addr))

	if err := router.Run(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

// corsMiddleware allows browser frontends on other origins to call the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// getOrCreateCollection implements collection management using the v2 API.
func getOrCreateCollection(ctx context.Context, client chromago.Client, collectionName string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "Personal knowledge vault collection"),
				chromago.NewStringAttribute("created_by", "vault_service"),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return collection, nil
}
