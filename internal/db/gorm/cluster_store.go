// Package gorm provides GORM-based database operations for semdedup.
package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/semdedup/pkg/models"
)

// DigestChunkSize bounds the IN list of a single digest lookup.
const DigestChunkSize = 500

// memberInsertBatch is the CreateInBatches size for cluster members.
const memberInsertBatch = 100

// ErrDigestConflict is returned when a member digest is already clustered for the tenant.
var ErrDigestConflict = errors.New("digest already clustered")

// ErrClusterNotFound is returned when a cluster does not exist for the tenant.
var ErrClusterNotFound = errors.New("cluster not found")

// ClusterStore provides semantic cluster operations using GORM.
type ClusterStore struct {
	db *gorm.DB
}

// NewClusterStore creates a new cluster store.
func NewClusterStore(store *Store) *ClusterStore {
	return &ClusterStore{db: store.DB}
}

// ExistingDigests returns the subset of digests already clustered for the tenant.
// Lookups are chunked so the IN list stays bounded.
func (s *ClusterStore) ExistingDigests(ctx context.Context, tenantID string, digests []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(digests); start += DigestChunkSize {
		end := start + DigestChunkSize
		if end > len(digests) {
			end = len(digests)
		}

		var found []string
		err := s.db.WithContext(ctx).
			Model(&SemanticClusterMember{}).
			Scopes(tenantFilter(tenantID)).
			Where("digest IN ?", digests[start:end]).
			Pluck("digest", &found).Error
		if err != nil {
			return nil, fmt.Errorf("query existing digests: %w", err)
		}
		for _, d := range found {
			existing[d] = struct{}{}
		}
	}
	return existing, nil
}

// CreateCluster inserts the cluster and all of its members in one transaction.
// The cluster's ID and member IDs are filled in on success.
func (s *ClusterStore) CreateCluster(ctx context.Context, cluster *models.Cluster, members []*models.ClusterMember) (int64, error) {
	if cluster == nil || len(members) == 0 {
		return 0, fmt.Errorf("create cluster: cluster with at least one member required")
	}

	row := &SemanticCluster{
		TenantID:        cluster.TenantID,
		CanonicalText:   cluster.CanonicalText,
		CanonicalVector: cluster.CanonicalVector,
		MemberCount:     len(members),
		AvgSimilarity:   cluster.AvgSimilarity,
		CreatedAt:       cluster.CreatedAt,
		CreatedAtEpoch:  cluster.CreatedAtEpoch,
	}

	rows := make([]SemanticClusterMember, len(members))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		for i, m := range members {
			rows[i] = SemanticClusterMember{
				ClusterID:       row.ID,
				TenantID:        row.TenantID,
				Digest:          m.Digest,
				MessageText:     m.MessageText,
				SimilarityScore: m.SimilarityScore,
				SourceType:      m.SourceType,
				SourceReference: m.SourceReference,
				CreatedAt:       row.CreatedAt,
				CreatedAtEpoch:  row.CreatedAtEpoch,
			}
		}
		return tx.Omit(clause.Associations).CreateInBatches(rows, memberInsertBatch).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create cluster: %w: %v", ErrDigestConflict, err)
		}
		return 0, fmt.Errorf("create cluster: %w", err)
	}

	cluster.ID = row.ID
	cluster.MemberCount = row.MemberCount
	cluster.CreatedAt = row.CreatedAt
	cluster.CreatedAtEpoch = row.CreatedAtEpoch
	for i, m := range members {
		m.ID = rows[i].ID
		m.ClusterID = row.ID
		m.TenantID = row.TenantID
		m.CreatedAt = row.CreatedAt
		m.CreatedAtEpoch = row.CreatedAtEpoch
	}
	return row.ID, nil
}

// ListClusters returns the tenant's clusters, largest first, then newest.
func (s *ClusterStore) ListClusters(ctx context.Context, tenantID string, limit int) ([]*models.Cluster, error) {
	var rows []SemanticCluster
	query := s.db.WithContext(ctx).
		Scopes(tenantFilter(tenantID), sizeOrdering())
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}

	out := make([]*models.Cluster, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// GetCluster returns a single cluster scoped to the tenant.
func (s *ClusterStore) GetCluster(ctx context.Context, tenantID string, id int64) (*models.Cluster, error) {
	var row SemanticCluster
	err := s.db.WithContext(ctx).
		Scopes(tenantFilter(tenantID)).
		First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClusterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	return row.toModel(), nil
}

// ListMembers returns the members of a cluster, canonical first.
func (s *ClusterStore) ListMembers(ctx context.Context, tenantID string, clusterID int64) ([]*models.ClusterMember, error) {
	var rows []SemanticClusterMember
	err := s.db.WithContext(ctx).
		Scopes(tenantFilter(tenantID)).
		Where("cluster_id = ?", clusterID).
		Order("similarity_score DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}

	out := make([]*models.ClusterMember, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// CountClusters returns the number of clusters stored for the tenant.
func (s *ClusterStore) CountClusters(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&SemanticCluster{}).
		Scopes(tenantFilter(tenantID)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return count, nil
}

// DeleteCluster removes a cluster; its members go with it.
// Their digests become eligible for clustering again.
func (s *ClusterStore) DeleteCluster(ctx context.Context, tenantID string, id int64) error {
	result := s.db.WithContext(ctx).
		Scopes(tenantFilter(tenantID)).
		Delete(&SemanticCluster{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete cluster: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClusterNotFound
	}
	return nil
}

// ====================
// Scopes
// ====================

// tenantFilter restricts a query to one tenant.
func tenantFilter(tenantID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// sizeOrdering orders clusters by member count DESC, then created_at_epoch DESC.
func sizeOrdering() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("member_count DESC, created_at_epoch DESC, id DESC")
	}
}

// isUniqueViolation reports whether err is a unique constraint failure on any supported driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
