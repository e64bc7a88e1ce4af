package embedding

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultMaxChars caps the input sent to the provider.
const DefaultMaxChars = 2000

// Truncator bounds embedding input by runes and, optionally, by tokens.
type Truncator struct {
	codec     tokenizer.Codec
	MaxChars  int
	MaxTokens int
}

// NewTruncator creates a truncator. A maxTokens of zero disables token bounding.
func NewTruncator(maxChars, maxTokens int) (*Truncator, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	t := &Truncator{MaxChars: maxChars, MaxTokens: maxTokens}
	if maxTokens > 0 {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		t.codec = codec
	}
	return t, nil
}

// Truncate returns text cut to at most MaxChars runes and MaxTokens tokens.
func (t *Truncator) Truncate(text string) string {
	if t == nil {
		return text
	}
	text = truncateRunes(text, t.MaxChars)
	if t.codec == nil || t.MaxTokens <= 0 {
		return text
	}

	ids, _, err := t.codec.Encode(text)
	if err != nil || len(ids) <= t.MaxTokens {
		return text
	}
	decoded, err := t.codec.Decode(ids[:t.MaxTokens])
	if err != nil {
		return text
	}
	// A cut inside a multi-byte rune decodes to a replacement char; drop it.
	for len(decoded) > 0 {
		r, size := utf8.DecodeLastRuneInString(decoded)
		if r != utf8.RuneError {
			break
		}
		decoded = decoded[:len(decoded)-size]
	}
	return decoded
}

func truncateRunes(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}
