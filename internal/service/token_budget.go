package service

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/timmy/sprintreport/internal/logger"
)

// TokenCounter measures prompt size. Without an encoding it estimates
// from word counts.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named BPE encoding, falling back to estimation
// when it cannot be loaded.
func NewTokenCounter(encoding string) *TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("Token encoding %s unavailable, estimating from words: %v", encoding, err)
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the number of tokens in s.
func (c *TokenCounter) Count(s string) int {
	if c != nil && c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	return estimateTokens(len(strings.Fields(s)))
}

// Truncate cuts s to at most limit tokens, marking the cut.
func (c *TokenCounter) Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if c.Count(s) <= limit {
		return s
	}
	if c != nil && c.enc != nil {
		tokens := c.enc.Encode(s, nil, nil)
		return c.enc.Decode(tokens[:limit]) + " [...]"
	}
	words := strings.Fields(s)
	keep := limit * 3 / 4
	if keep > len(words) {
		keep = len(words)
	}
	return strings.Join(words[:keep], " ") + " [...]"
}

// estimateTokens approximates English text at four tokens per three words.
func estimateTokens(words int) int {
	return (words*4 + 2) / 3
}
