package knowledge

import (
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenCounter provides token counting functionality
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter creates a new token counter with cl100k_base encoding
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{encoder: nil}, err
	}
	return &TokenCounter{encoder: enc}, nil
}

// CountTokens counts the number of tokens in the given text
// Falls back to character/4 approximation if encoder is unavailable
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.encoder == nil {
		return len(text) / 4
	}
	return len(tc.encoder.Encode(text, nil, nil))
}

// Truncate cuts text down to at most limit tokens. A non-positive limit
// returns text unchanged.
func (tc *TokenCounter) Truncate(text string, limit int) (string, bool) {
	if limit <= 0 || tc.CountTokens(text) <= limit {
		return text, false
	}
	if tc == nil || tc.encoder == nil {
		cut := limit * 4
		if cut > len(text) {
			cut = len(text)
		}
		for cut > 0 && cut < len(text) && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut], true
	}
	tokens := tc.encoder.Encode(text, nil, nil)
	return tc.encoder.Decode(tokens[:limit]), true
}
