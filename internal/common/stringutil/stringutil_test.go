package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "hel", TruncateString("hello", 3))
	assert.Equal(t, "hello", TruncateString("hello", 5))
}

func TestTruncateStringWithEllipsis(t *testing.T) {
	assert.Equal(t, "hello", TruncateStringWithEllipsis("hello", 10))
	assert.Equal(t, "he...", TruncateStringWithEllipsis("hello world", 5))
	assert.Equal(t, "hello", TruncateStringWithEllipsis("hello", 5))
}

func TestTruncateStringWithEllipsisSmallMaxLen(t *testing.T) {
	assert.Equal(t, "he", TruncateStringWithEllipsis("hello", 2))
}
