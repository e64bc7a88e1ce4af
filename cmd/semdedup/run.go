package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/semdedup/internal/worker"
	"github.com/thebtf/semdedup/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one dedup pass for a tenant",
	Long: `Run one dedup pass for a tenant and print the run summary as JSON.

Examples:
  # Cluster the latest inbound chat messages
  semdedup run --tenant acme

  # Cluster conversation segments, at most 1000 of them
  semdedup run --tenant acme --source segments --limit 1000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		sourceName, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := worker.NewService(cfg, Version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = svc.Shutdown(shutdownCtx)
		}()

		summary, err := svc.RunOnce(ctx, models.RunRequest{
			TenantID: tenantID,
			Source:   sourceName,
			Limit:    limit,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().String("tenant", "", "Tenant to deduplicate (required)")
	runCmd.Flags().String("source", string(models.DefaultSource), "Source collection: raw_messages or segments")
	runCmd.Flags().Int("limit", models.DefaultRunLimit, "Maximum number of messages to read")
	_ = runCmd.MarkFlagRequired("tenant")
}
