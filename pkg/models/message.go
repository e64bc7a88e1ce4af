// Package models contains domain models for semdedup.
package models

import "fmt"

// SourceKind identifies the collection candidate messages are read from.
type SourceKind string

const (
	// SourceRawMessages reads individual inbound chat messages.
	SourceRawMessages SourceKind = "raw_messages"
	// SourceSegments reads conversation segments (grouped message runs).
	SourceSegments SourceKind = "segments"
)

// DefaultSource is used when a request does not name a source.
const DefaultSource = SourceRawMessages

// ParseSourceKind validates a source name. An empty name maps to DefaultSource.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(s) {
	case "":
		return DefaultSource, nil
	case SourceRawMessages, SourceSegments:
		return SourceKind(s), nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// CandidateMessage is one unit of inbound text read from a source collection.
// It is read once per run and never mutated.
type CandidateMessage struct {
	ID       string     `db:"id" json:"id"`
	TenantID string     `db:"tenant_id" json:"tenant_id"`
	RawText  string     `db:"raw_text" json:"raw_text"`
	Source   SourceKind `db:"source" json:"source"`
}

// NormalizedMessage is a candidate together with its normalized text and digest.
// Digest is a pure function of Normalized.
type NormalizedMessage struct {
	Candidate  CandidateMessage
	Normalized string
	Digest     string
}
