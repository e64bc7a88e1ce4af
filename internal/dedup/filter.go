// Package dedup implements batch-local exact deduplication of candidate messages.
package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/semdedup/internal/textnorm"
	"github.com/thebtf/semdedup/pkg/models"
)

// DefaultMinLength is the minimum raw text length (in runes) that can carry intent.
const DefaultMinLength = 5

// Filter drops too-short messages and keeps the first occurrence of each digest.
type Filter struct {
	Normalizer textnorm.Normalizer
	MinLength  int
}

// NewFilter creates a filter with the default normalizer.
func NewFilter(minLength int) *Filter {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Filter{
		Normalizer: textnorm.Default,
		MinLength:  minLength,
	}
}

// Result holds the survivors and counters of one Apply call.
type Result struct {
	Unique     []models.NormalizedMessage
	Seen       int
	TooShort   int
	Duplicates int
}

// Digests returns the digests of the unique messages in order.
func (r *Result) Digests() []string {
	digests := make([]string, len(r.Unique))
	for i, m := range r.Unique {
		digests[i] = m.Digest
	}
	return digests
}

// Apply filters messages in input order. It has no side effects.
func (f *Filter) Apply(messages []models.CandidateMessage) *Result {
	result := &Result{
		Seen:   len(messages),
		Unique: make([]models.NormalizedMessage, 0, len(messages)),
	}
	if len(messages) == 0 {
		return result
	}

	minLength := f.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	seen := make(map[string]bool, len(messages))
	for _, msg := range messages {
		if utf8.RuneCountInString(strings.TrimSpace(msg.RawText)) < minLength {
			result.TooShort++
			continue
		}

		normalized := f.Normalizer.Normalize(msg.RawText)
		if normalized == "" {
			result.TooShort++
			continue
		}

		digest := textnorm.Digest(normalized)
		if seen[digest] {
			result.Duplicates++
			continue
		}
		seen[digest] = true

		result.Unique = append(result.Unique, models.NormalizedMessage{
			Candidate:  msg,
			Normalized: normalized,
			Digest:     digest,
		})
	}

	log.Debug().
		Int("seen", result.Seen).
		Int("unique", len(result.Unique)).
		Int("duplicates", result.Duplicates).
		Int("tooShort", result.TooShort).
		Msg("Exact dedup completed")

	return result
}

// Exclude returns the messages whose digest is not in existing, preserving order.
func Exclude(messages []models.NormalizedMessage, existing map[string]struct{}) []models.NormalizedMessage {
	if len(existing) == 0 {
		return messages
	}
	out := make([]models.NormalizedMessage, 0, len(messages))
	for _, m := range messages {
		if _, ok := existing[m.Digest]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}
