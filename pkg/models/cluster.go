package models

// CanonicalSimilarity is the similarity score recorded for a cluster's canonical member.
const CanonicalSimilarity = 1.0

// Cluster is one persisted semantic group of messages for a tenant.
type Cluster struct {
	TenantID        string  `db:"tenant_id" json:"tenant_id"`
	CanonicalText   string  `db:"canonical_text" json:"canonical_text"`
	CreatedAt       string  `db:"created_at" json:"created_at"`
	CanonicalVector Vector  `db:"canonical_vector" json:"-"`
	ID              int64   `db:"id" json:"id"`
	MemberCount     int     `db:"member_count" json:"member_count"`
	AvgSimilarity   float64 `db:"avg_similarity" json:"avg_similarity"`
	CreatedAtEpoch  int64   `db:"created_at_epoch" json:"created_at_epoch"`
}

// ClusterMember is one message assigned to a cluster.
// Digest is unique per tenant across all clusters.
type ClusterMember struct {
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	MessageText     string     `db:"message_text" json:"message_text"`
	Digest          string     `db:"digest" json:"digest"`
	SourceType      SourceKind `db:"source_type" json:"source_type"`
	SourceReference string     `db:"source_reference" json:"source_reference"`
	CreatedAt       string     `db:"created_at" json:"created_at"`
	ID              int64      `db:"id" json:"id"`
	ClusterID       int64      `db:"cluster_id" json:"cluster_id"`
	SimilarityScore float64    `db:"similarity_score" json:"similarity_score"`
	CreatedAtEpoch  int64      `db:"created_at_epoch" json:"created_at_epoch"`
}

// IsCanonical reports whether the member is its cluster's canonical entry.
func (m *ClusterMember) IsCanonical() bool {
	return m.SimilarityScore == CanonicalSimilarity
}
