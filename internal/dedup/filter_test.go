package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semdedup/internal/textnorm"
	"github.com/thebtf/semdedup/pkg/models"
)

func msgs(texts ...string) []models.CandidateMessage {
	out := make([]models.CandidateMessage, len(texts))
	for i, text := range texts {
		out[i] = models.CandidateMessage{
			ID:       string(rune('a' + i)),
			TenantID: "org-1",
			RawText:  text,
			Source:   models.SourceRawMessages,
		}
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name           string
		input          []models.CandidateMessage
		wantUniqueIDs  []string
		wantDuplicates int
		wantTooShort   int
	}{
		{
			name:  "empty input",
			input: nil,
		},
		{
			name:          "all distinct",
			input:         msgs("Сколько стоит курс?", "Где находится школа?"),
			wantUniqueIDs: []string{"a", "b"},
		},
		{
			name:           "case and punctuation duplicates collapse to first",
			input:          msgs("Hello, World!", "hello world", "HELLO WORLD!!!"),
			wantUniqueIDs:  []string{"a"},
			wantDuplicates: 2,
		},
		{
			name:          "too short dropped",
			input:         msgs("ок", "  да  ", "Какая цена на обучение?"),
			wantUniqueIDs: []string{"c"},
			wantTooShort:  2,
		},
		{
			name:          "punctuation only counts as too short",
			input:         msgs("?!?!?!?!", "Запишите меня"),
			wantUniqueIDs: []string{"b"},
			wantTooShort:  1,
		},
		{
			name:           "mixed",
			input:          msgs("Сколько стоит курс?", "сколько стоит курс", "Какая цена на обучение?", "hi"),
			wantUniqueIDs:  []string{"a", "c"},
			wantDuplicates: 1,
			wantTooShort:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewFilter(DefaultMinLength).Apply(tt.input)

			ids := make([]string, 0, len(result.Unique))
			for _, m := range result.Unique {
				ids = append(ids, m.Candidate.ID)
				assert.Len(t, m.Digest, textnorm.DigestLength)
				assert.Equal(t, textnorm.Digest(m.Normalized), m.Digest)
			}
			if len(tt.wantUniqueIDs) == 0 {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.wantUniqueIDs, ids)
			}
			assert.Equal(t, len(tt.input), result.Seen)
			assert.Equal(t, tt.wantDuplicates, result.Duplicates)
			assert.Equal(t, tt.wantTooShort, result.TooShort)
		})
	}
}

func TestFilter_MinLengthConfigurable(t *testing.T) {
	result := NewFilter(2).Apply(msgs("ок", "a"))
	require.Len(t, result.Unique, 1)
	assert.Equal(t, "ок", result.Unique[0].Normalized)
	assert.Equal(t, 1, result.TooShort)
}

func TestFilter_LengthCountsTrimmedRunes(t *testing.T) {
	// Padding does not count; multi-byte letters count once.
	result := NewFilter(5).Apply(msgs("   да   ", "\tпривет\n"))
	require.Len(t, result.Unique, 1)
	assert.Equal(t, "b", result.Unique[0].Candidate.ID)
	assert.Equal(t, 1, result.TooShort)
}

func TestFilter_RepeatedApplyIsStable(t *testing.T) {
	f := NewFilter(DefaultMinLength)
	input := msgs("Сколько стоит курс?", "Где находится школа?")
	assert.Equal(t, f.Apply(input).Digests(), f.Apply(input).Digests())
}

func TestExclude(t *testing.T) {
	result := NewFilter(DefaultMinLength).Apply(msgs("первое сообщение", "второе сообщение", "третье сообщение"))
	require.Len(t, result.Unique, 3)

	existing := map[string]struct{}{result.Unique[1].Digest: {}}
	remaining := Exclude(result.Unique, existing)
	require.Len(t, remaining, 2)
	assert.Equal(t, "a", remaining[0].Candidate.ID)
	assert.Equal(t, "c", remaining[1].Candidate.ID)

	assert.Equal(t, result.Unique, Exclude(result.Unique, nil))
}
