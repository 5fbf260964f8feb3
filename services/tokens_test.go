package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounter_Count(t *testing.T) {
	counter, err := GetTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, counter.Count(""))
	assert.Greater(t, counter.Count("hello world"), 0)

	// More text means more tokens.
	short := counter.Count("one sentence.")
	long := counter.Count("one sentence. and then quite a few more words after it.")
	assert.Greater(t, long, short)
}

func TestGetTokenCounter_SharedInstance(t *testing.T) {
	a, err := GetTokenCounter()
	require.NoError(t, err)
	b, err := GetTokenCounter()
	require.NoError(t, err)
	assert.Same(t, a, b)
}
