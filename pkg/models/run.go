package models

// Request limits.
const (
	DefaultRunLimit = 5000
	MaxRunLimit     = 20000
)

// RunRequest asks for one dedup pass over a tenant's source collection.
type RunRequest struct {
	TenantID string `json:"tenant_id"`
	Source   string `json:"source,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// EffectiveLimit returns the limit clamped to (0, maxLimit]; zero or negative means default.
func (r RunRequest) EffectiveLimit(maxLimit int) int {
	if maxLimit <= 0 {
		maxLimit = MaxRunLimit
	}
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// RunSummary reports the counters of one pipeline pass.
type RunSummary struct {
	RunID                string     `json:"run_id"`
	TenantID             string     `json:"tenant_id"`
	Source               SourceKind `json:"source"`
	Note                 string     `json:"note,omitempty"`
	ClustersCreated      int        `json:"clusters_created"`
	MessagesProcessed    int        `json:"messages_processed"`
	UniqueAfterHashDedup int        `json:"unique_after_hash_dedup"`
	DuplicatesSkipped    int        `json:"duplicates_skipped"`
	EmbeddingsCreated    int        `json:"embeddings_created"`
	Errors               int        `json:"errors"`
	AlreadyClustered     int        `json:"already_clustered"`
	TooShort             int        `json:"too_short"`
	DurationMS           int64      `json:"duration_ms"`
	Cancelled            bool       `json:"cancelled,omitempty"`
}
