// Package gorm provides GORM-based database operations for semdedup.
package gorm

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"gorm.io/gorm"

	"github.com/thebtf/semdedup/pkg/models"
)

// identPattern matches plain SQL identifiers, optionally schema-qualified.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SourceQuery describes where candidate messages of one source kind live.
type SourceQuery struct {
	Table        string
	IDColumn     string
	TenantColumn string
	TextColumn   string
	OrderColumn  string
	// Equals adds column = value conditions, e.g. direction = inbound.
	Equals map[string]string
}

// Validate checks that every configured name is a plain identifier.
func (q SourceQuery) Validate() error {
	names := map[string]string{
		"table":         q.Table,
		"id_column":     q.IDColumn,
		"tenant_column": q.TenantColumn,
		"text_column":   q.TextColumn,
		"order_column":  q.OrderColumn,
	}
	for col := range q.Equals {
		names["equals."+col] = col
	}
	for field, name := range names {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("invalid %s %q", field, name)
		}
	}
	return nil
}

// candidateRow is the projection scanned from a source table.
type candidateRow struct {
	ID      string
	RawText string
}

// MessageStore reads candidate messages from the CRM source tables.
type MessageStore struct {
	db *gorm.DB
}

// NewMessageStore creates a new message store.
func NewMessageStore(store *Store) *MessageStore {
	return &MessageStore{db: store.DB}
}

// FetchCandidates returns up to limit non-empty texts for the tenant, newest first.
func (s *MessageStore) FetchCandidates(ctx context.Context, q SourceQuery, kind models.SourceKind, tenantID string, limit int) ([]models.CandidateMessage, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: %w", kind, err)
	}

	query := s.db.WithContext(ctx).
		Table(q.Table).
		Select(fmt.Sprintf("CAST(%s AS TEXT) AS id, %s AS raw_text", q.IDColumn, q.TextColumn)).
		Where(fmt.Sprintf("%s = ?", q.TenantColumn), tenantID).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s <> ''", q.TextColumn, q.TextColumn))

	// Deterministic condition order keeps prepared statements reusable
	cols := make([]string, 0, len(q.Equals))
	for col := range q.Equals {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		query = query.Where(fmt.Sprintf("%s = ?", col), q.Equals[col])
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []candidateRow
	err := query.
		Order(fmt.Sprintf("%s DESC, %s DESC", q.OrderColumn, q.IDColumn)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch %s candidates: %w", kind, err)
	}

	out := make([]models.CandidateMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.CandidateMessage{
			ID:       r.ID,
			TenantID: tenantID,
			RawText:  r.RawText,
			Source:   kind,
		})
	}
	return out, nil
}
