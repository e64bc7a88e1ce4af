// Package gorm provides GORM-based database operations for semdedup.
package gorm

import (
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/semdedup/pkg/models"
)

// GORM Models

// SemanticCluster is one group of near-duplicate messages for a tenant.
type SemanticCluster struct {
	ID              int64         `gorm:"primaryKey;autoIncrement"`
	TenantID        string        `gorm:"type:varchar(128);not null;index:idx_semantic_clusters_tenant_created,priority:1;index:idx_semantic_clusters_tenant_members,priority:1"`
	CanonicalText   string        `gorm:"type:text;not null"`
	CanonicalVector models.Vector `gorm:"type:text;not null"` // JSON array
	MemberCount     int           `gorm:"not null;default:1;index:idx_semantic_clusters_tenant_members,priority:2,sort:desc"`
	AvgSimilarity   float64       `gorm:"type:double precision;not null;default:1"`
	CreatedAt       string        `gorm:"not null"`
	CreatedAtEpoch  int64         `gorm:"not null;index:idx_semantic_clusters_tenant_created,priority:2,sort:desc"`
}

func (SemanticCluster) TableName() string { return "semantic_clusters" }

// BeforeCreate hook to ensure timestamps are set.
func (c *SemanticCluster) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = now.UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// SemanticClusterMember is one message assigned to a cluster.
// (tenant_id, digest) is unique so a message joins at most one cluster.
type SemanticClusterMember struct {
	ID              int64             `gorm:"primaryKey;autoIncrement"`
	ClusterID       int64             `gorm:"not null;index"`
	Cluster         *SemanticCluster  `gorm:"foreignKey:ClusterID;constraint:OnDelete:CASCADE"`
	TenantID        string            `gorm:"type:varchar(128);not null;uniqueIndex:idx_semantic_members_tenant_digest,priority:1"`
	Digest          string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_semantic_members_tenant_digest,priority:2"`
	MessageText     string            `gorm:"type:text;not null"`
	SimilarityScore float64           `gorm:"type:double precision;not null"`
	SourceType      models.SourceKind `gorm:"type:varchar(32);not null;check:source_type IN ('raw_messages', 'segments')"`
	SourceReference string            `gorm:"type:varchar(128);not null;index"`
	CreatedAt       string            `gorm:"not null"`
	CreatedAtEpoch  int64             `gorm:"not null"`
}

func (SemanticClusterMember) TableName() string { return "semantic_cluster_members" }

// BeforeCreate hook to ensure timestamps are set.
func (m *SemanticClusterMember) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.CreatedAtEpoch == 0 {
		m.CreatedAtEpoch = now.UnixMilli()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// ChatMessage is the minimal shape of the CRM chat message table.
// It is only migrated for local development and tests.
type ChatMessage struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	TenantID       string `gorm:"type:varchar(128);not null;index:idx_chat_messages_tenant_created,priority:1"`
	Direction      string `gorm:"type:varchar(16);not null;default:'inbound'"`
	Text           string `gorm:"type:text"`
	CreatedAtEpoch int64  `gorm:"not null;index:idx_chat_messages_tenant_created,priority:2,sort:desc"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// BeforeCreate hook to ensure timestamps are set.
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAtEpoch == 0 {
		m.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// ConversationSegment is the minimal shape of the conversation segment table.
// It is only migrated for local development and tests.
type ConversationSegment struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	TenantID       string `gorm:"type:varchar(128);not null;index:idx_conversation_segments_tenant_created,priority:1"`
	Content        string `gorm:"type:text"`
	CreatedAtEpoch int64  `gorm:"not null;index:idx_conversation_segments_tenant_created,priority:2,sort:desc"`
}

func (ConversationSegment) TableName() string { return "conversation_segments" }

// BeforeCreate hook to ensure timestamps are set.
func (s *ConversationSegment) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// toModel converts the GORM row into the domain type.
func (c *SemanticCluster) toModel() *models.Cluster {
	return &models.Cluster{
		ID:              c.ID,
		TenantID:        c.TenantID,
		CanonicalText:   c.CanonicalText,
		CanonicalVector: c.CanonicalVector,
		MemberCount:     c.MemberCount,
		AvgSimilarity:   c.AvgSimilarity,
		CreatedAt:       c.CreatedAt,
		CreatedAtEpoch:  c.CreatedAtEpoch,
	}
}

func (m *SemanticClusterMember) toModel() *models.ClusterMember {
	return &models.ClusterMember{
		ID:              m.ID,
		ClusterID:       m.ClusterID,
		TenantID:        m.TenantID,
		MessageText:     m.MessageText,
		Digest:          m.Digest,
		SimilarityScore: m.SimilarityScore,
		SourceType:      m.SourceType,
		SourceReference: m.SourceReference,
		CreatedAt:       m.CreatedAt,
		CreatedAtEpoch:  m.CreatedAtEpoch,
	}
}
