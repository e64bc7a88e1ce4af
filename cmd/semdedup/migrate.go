package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"

	gormdb "github.com/thebtf/semdedup/internal/db/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Create or upgrade the cluster tables.

With --dev the chat_messages and conversation_segments source tables are
created too, for local testing against an empty database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, _ := cmd.Flags().GetBool("dev")

		store, err := gormdb.NewStore(gormdb.Config{
			Driver:          cfg.DBDriver,
			DSN:             cfg.DatabaseURL,
			MaxConns:        cfg.MaxConns,
			LogLevel:        gormlogger.Warn,
			DevSourceTables: dev || cfg.DevSourceTables,
		})
		if err != nil {
			return err
		}
		defer store.Close()

		log.Info().Str("driver", store.Driver()).Msg("Migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("dev", false, "Also create the source tables")
}
