package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreviewText_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short chunk", previewText("short chunk"))
}

func TestPreviewText_LongTextTruncated(t *testing.T) {
	long := strings.Repeat("a", 500)
	out := previewText(long)
	assert.Len(t, out, sourcePreviewLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestPreviewText_RespectsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("世", 300)
	out := previewText(long)
	assert.True(t, strings.HasSuffix(out, "..."))
	// Truncation must not split a multi-byte rune.
	assert.Equal(t, strings.Repeat("世", sourcePreviewLen)+"...", out)
}
