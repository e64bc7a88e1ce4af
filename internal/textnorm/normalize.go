// Package textnorm provides deterministic text normalization and content digests
// used as exact-duplicate keys.
package textnorm

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// DigestLength is the length of a hex-encoded digest (BLAKE2b-256).
const DigestLength = blake2b.Size256 * 2

// DefaultScripts are the alphabets whose letters survive normalization.
var DefaultScripts = []*unicode.RangeTable{unicode.Latin, unicode.Cyrillic}

// Normalizer lower-cases text, removes every rune that is not a letter of the
// allowed scripts or a decimal digit, and collapses whitespace to single spaces.
type Normalizer struct {
	Scripts []*unicode.RangeTable
	// FoldYo maps ё to е before comparison.
	FoldYo bool
}

// Default is the normalizer used by Normalize.
var Default = Normalizer{Scripts: DefaultScripts, FoldYo: true}

// Normalize normalizes text with the Default normalizer.
func Normalize(text string) string {
	return Default.Normalize(text)
}

// Normalize returns the canonical form of text. It is total and deterministic.
func (n Normalizer) Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range strings.ToLower(text) {
		if n.FoldYo && r == 'ё' {
			r = 'е'
		}
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if !n.keep(r) {
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func (n Normalizer) keep(r rune) bool {
	if unicode.IsDigit(r) {
		return true
	}
	if !unicode.IsLetter(r) {
		return false
	}
	scripts := n.Scripts
	if len(scripts) == 0 {
		scripts = DefaultScripts
	}
	return unicode.IsOneOf(scripts, r)
}

// Digest returns the hex-encoded BLAKE2b-256 of the UTF-8 bytes of normalized.
func Digest(normalized string) string {
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeAndDigest is Normalize followed by Digest.
func NormalizeAndDigest(text string) (string, string) {
	normalized := Normalize(text)
	return normalized, Digest(normalized)
}
