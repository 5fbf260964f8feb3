package services

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// Offline loader so token counting never reaches out to the network.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter counts tokens with the cl100k_base encoding. Counts are used
// to cap how much conversation history gets folded into a prompt.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	tokenCounter     *TokenCounter
	tokenCounterOnce sync.Once
	tokenCounterErr  error
)

// GetTokenCounter returns the shared counter. The encoding tables are loaded
// once and reused.
func GetTokenCounter() (*TokenCounter, error) {
	tokenCounterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			tokenCounterErr = err
			return
		}
		tokenCounter = &TokenCounter{encoding: enc}
	})
	if tokenCounterErr != nil {
		return nil, tokenCounterErr
	}
	return tokenCounter, nil
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoding.Encode(text, nil, nil))
}
