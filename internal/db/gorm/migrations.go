// Package gorm provides GORM-based database operations for semdedup.
package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
// The source table migration is only registered for local development,
// production reads the CRM tables that already exist.
func runMigrations(db *gorm.DB, devSourceTables bool) error {
	migrations := []*gormigrate.Migration{
		// Migration 001: Cluster table
		{
			ID: "001_semantic_clusters",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				return tx.AutoMigrate(&SemanticCluster{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("semantic_clusters")
			},
		},

		// Migration 002: Cluster members with the per-tenant digest constraint
		{
			ID: "002_semantic_cluster_members",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&SemanticClusterMember{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("semantic_cluster_members")
			},
		},
	}

	if devSourceTables {
		// Migration 003: Minimal source tables for local runs
		migrations = append(migrations, &gormigrate.Migration{
			ID: "003_source_tables",
			Migrate: func(tx *gorm.DB) error {
				for _, model := range []interface{}{&ChatMessage{}, &ConversationSegment{}} {
					if tx.Migrator().HasTable(model) {
						continue
					}
					if err := tx.Migrator().CreateTable(model); err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("chat_messages", "conversation_segments")
			},
		})
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations)
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
