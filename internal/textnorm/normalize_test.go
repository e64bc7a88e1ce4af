package textnorm

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "only punctuation", input: "?!... --", expected: ""},
		{name: "case and punctuation", input: " Hello,  World! ", expected: "hello world"},
		{name: "cyrillic question", input: "Сколько стоит курс?", expected: "сколько стоит курс"},
		{name: "yo folding", input: "Ещё раз", expected: "еще раз"},
		{name: "digits kept", input: "Курс за 5000₽!!", expected: "курс за 5000"},
		{name: "newlines and tabs collapse", input: "a\n\n\tb   c", expected: "a b c"},
		{name: "emoji removed", input: "привет 👋 мир", expected: "привет мир"},
		{name: "other scripts removed", input: "hello 你好 world", expected: "hello world"},
		{name: "slash between words removed", input: "цена/стоимость", expected: "ценастоимость"},
		{name: "intra-word hyphen latin", input: "E-mail", expected: "email"},
		{name: "intra-word hyphen cyrillic", input: "Что-то не так", expected: "чтото не так"},
		{name: "apostrophe", input: "Don't worry", expected: "dont worry"},
		{name: "spaced dash", input: "курс - дорого", expected: "курс дорого"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{" Hello,  World! ", "Где находится школа?", "ЁЛКА 2024", ""}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
		assert.Equal(t, Digest(once), Digest(Normalize(once)))
	}
}

func TestNormalizer_CustomScripts(t *testing.T) {
	n := Normalizer{Scripts: []*unicode.RangeTable{unicode.Latin}}
	assert.Equal(t, "hello", n.Normalize("hello привет"))
	assert.Equal(t, "ёж", Normalizer{Scripts: DefaultScripts}.Normalize("Ёж"))
}

func TestDigest_Stability(t *testing.T) {
	assert.Equal(t, Digest(Normalize(" Hello,  World! ")), Digest(Normalize("hello world")))
	assert.NotEqual(t, Digest("hello world"), Digest("hello  world!"))

	// Known BLAKE2b-256 of the empty input
	assert.Equal(t, "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", Digest(""))
}

func TestDigest_PunctuationInsideWords(t *testing.T) {
	tests := []struct {
		a string
		b string
	}{
		{a: "e-mail", b: "email"},
		{a: "что-то", b: "чтото"},
		{a: "don't", b: "dont"},
	}

	for _, tt := range tests {
		t.Run(tt.a, func(t *testing.T) {
			assert.Equal(t, Digest(Normalize(tt.b)), Digest(Normalize(tt.a)))
		})
	}
}

func TestDigest_ConstantLength(t *testing.T) {
	for _, in := range []string{"", "a", strings.Repeat("длинный текст ", 1000)} {
		assert.Len(t, Digest(in), DigestLength)
	}
}

func TestNormalizeAndDigest(t *testing.T) {
	normalized, digest := NormalizeAndDigest("Сколько стоит курс?")
	assert.Equal(t, "сколько стоит курс", normalized)
	assert.Equal(t, Digest("сколько стоит курс"), digest)
}
