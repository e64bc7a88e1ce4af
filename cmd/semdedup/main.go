// Package main provides the semdedup command line entry point.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/semdedup/internal/config"
	"github.com/thebtf/semdedup/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "semdedup",
	Short: "Semantic near-duplicate clustering for inbound CRM messages",
	Long: `semdedup groups a tenant's inbound messages into clusters of near-duplicates.

Messages are normalized and hashed to drop exact repeats, embedded, and
grouped greedily by cosine similarity. Clusters are stored per tenant and
served over HTTP by the worker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := config.EnsureAll(); err != nil {
			return fmt.Errorf("ensure data directory: %w", err)
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return logging.Setup(cfg.Environment, cfg.LogLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, runCmd, serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
