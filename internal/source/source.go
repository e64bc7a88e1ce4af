package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/thebtf/semdedup/internal/db/gorm"
	"github.com/thebtf/semdedup/pkg/models"
)

// ErrUnknownSource is returned when no source is registered for a kind.
var ErrUnknownSource = errors.New("unknown source")

// Source fetches candidate messages for one tenant, newest first.
type Source interface {
	Kind() models.SourceKind
	FetchCandidates(ctx context.Context, tenantID string, limit int) ([]models.CandidateMessage, error)
}

// Reader is the storage capability a Source needs.
type Reader interface {
	FetchCandidates(ctx context.Context, q gorm.SourceQuery, kind models.SourceKind, tenantID string, limit int) ([]models.CandidateMessage, error)
}

// RawMessages reads inbound chat messages.
type RawMessages struct {
	reader Reader
	table  Table
}

// NewRawMessages creates the raw messages source.
func NewRawMessages(reader Reader, table Table) *RawMessages {
	return &RawMessages{reader: reader, table: table}
}

func (s *RawMessages) Kind() models.SourceKind { return models.SourceRawMessages }

// FetchCandidates returns the tenant's most recent inbound messages.
func (s *RawMessages) FetchCandidates(ctx context.Context, tenantID string, limit int) ([]models.CandidateMessage, error) {
	return s.reader.FetchCandidates(ctx, s.table.Query(), models.SourceRawMessages, tenantID, limit)
}

// Segments reads conversation segments.
type Segments struct {
	reader Reader
	table  Table
}

// NewSegments creates the conversation segments source.
func NewSegments(reader Reader, table Table) *Segments {
	return &Segments{reader: reader, table: table}
}

func (s *Segments) Kind() models.SourceKind { return models.SourceSegments }

// FetchCandidates returns the tenant's most recent segments.
func (s *Segments) FetchCandidates(ctx context.Context, tenantID string, limit int) ([]models.CandidateMessage, error) {
	return s.reader.FetchCandidates(ctx, s.table.Query(), models.SourceSegments, tenantID, limit)
}

// Registry holds the sources, keyed by kind.
type Registry struct {
	byKind map[models.SourceKind]Source
}

// NewRegistry builds one source per table mapping.
func NewRegistry(reader Reader, tables []Table) *Registry {
	r := &Registry{byKind: make(map[models.SourceKind]Source, len(tables))}
	for _, t := range tables {
		switch t.Kind {
		case models.SourceRawMessages:
			r.byKind[t.Kind] = NewRawMessages(reader, t)
		case models.SourceSegments:
			r.byKind[t.Kind] = NewSegments(reader, t)
		}
	}
	return r
}

// Register adds or replaces a source.
func (r *Registry) Register(src Source) {
	r.byKind[src.Kind()] = src
}

// Get returns the source for kind.
func (r *Registry) Get(kind models.SourceKind) (Source, error) {
	src, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, kind)
	}
	return src, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []models.SourceKind {
	kinds := make([]models.SourceKind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
