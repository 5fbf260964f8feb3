package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// PlaceholderAPIKey is the value seeded into a fresh .env file. Startup
// refuses to proceed while the key still holds this value.
const PlaceholderAPIKey = "your-api-key-here"

// envTemplate is written when no .env file exists yet.
const envTemplate = `# Personal Knowledge Vault configuration
# Get your API key from: https://aistudio.google.com/app/apikey
GOOGLE_API_KEY=your-api-key-here
`

// Config holds all runtime settings for the vault. Values come from the
// environment (after an optional .env load) with sensible defaults.
type Config struct {
	GoogleAPIKey string
	ChromaURL    string
	Port         string

	DataDir    string
	StorageDir string

	LLMModel       string
	EmbeddingModel string
	Temperature    float64

	ChunkSize    int
	ChunkOverlap int
	RetrievalK   int

	MaxFileSizeMB int

	ChatContextMessages int
	ChatContextTokens   int
}

// Load reads the .env file in the working directory (if present) and builds
// a Config from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env is fine; the environment may already be configured.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("could not load .env file: %w", err)
		}
	}

	cfg := &Config{
		GoogleAPIKey:        os.Getenv("GOOGLE_API_KEY"),
		ChromaURL:           envOrDefault("CHROMA_URL", "http://localhost:8000"),
		Port:                envOrDefault("PORT", "8501"),
		DataDir:             envOrDefault("DATA_DIR", "data"),
		StorageDir:          envOrDefault("STORAGE_DIR", "storage"),
		LLMModel:            envOrDefault("LLM_MODEL", "gemini-1.5-flash"),
		EmbeddingModel:      envOrDefault("EMBEDDING_MODEL", "embedding-001"),
		Temperature:         0.1,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		RetrievalK:          4,
		MaxFileSizeMB:       10,
		ChatContextMessages: 5,
		ChatContextTokens:   2000,
	}

	var err error
	if cfg.Temperature, err = envFloat("LLM_TEMPERATURE", cfg.Temperature); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = envInt("CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = envInt("CHUNK_OVERLAP", cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.RetrievalK, err = envInt("RETRIEVAL_K", cfg.RetrievalK); err != nil {
		return nil, err
	}
	if cfg.MaxFileSizeMB, err = envInt("MAX_FILE_SIZE_MB", cfg.MaxFileSizeMB); err != nil {
		return nil, err
	}
	if cfg.ChatContextMessages, err = envInt("CHAT_CONTEXT_MESSAGES", cfg.ChatContextMessages); err != nil {
		return nil, err
	}
	if cfg.ChatContextTokens, err = envInt("CHAT_CONTEXT_TOKENS", cfg.ChatContextTokens); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. A missing or placeholder
// API key is fatal: the vault cannot embed or answer anything without it.
func (c *Config) Validate() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("no valid API key found: set GOOGLE_API_KEY in your environment or .env file")
	}
	if c.GoogleAPIKey == PlaceholderAPIKey {
		return fmt.Errorf("GOOGLE_API_KEY still holds the placeholder value %q: edit your .env file", PlaceholderAPIKey)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// EnsureDirectories creates the data and storage directories if they do not
// exist. Existing directories are left untouched, so calling this repeatedly
// is safe.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.StorageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureEnvFile seeds a .env template at path when no file exists there yet.
// An existing file is never overwritten.
func EnsureEnvFile(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("could not stat %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("could not create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(envTemplate), 0o600); err != nil {
		return false, fmt.Errorf("could not write %s: %w", path, err)
	}
	return true, nil
}

// MaxFileSizeBytes returns the upload size limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return f, nil
}
