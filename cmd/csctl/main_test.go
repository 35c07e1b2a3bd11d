package main

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde…", truncate("abcdefgh", 5))

	// Multi-byte text must be cut on rune boundaries, never mid-sequence.
	got := truncate("予約注文が届きません", 4)
	assert.Equal(t, "予約注文…", got)
	assert.True(t, utf8.ValidString(got))
}
