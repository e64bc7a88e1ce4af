package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/semdedup/internal/config"
	"github.com/thebtf/semdedup/internal/watcher"
	"github.com/thebtf/semdedup/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the worker HTTP service",
	Long: `Start the worker HTTP service with the dedup API, the dashboard and,
when SEMDEDUP_SCHEDULE_INTERVAL and SEMDEDUP_SCHEDULE_TENANTS are set, the
periodic scheduler.

The process exits when settings.json or the sources file changes so a
supervisor can restart it with the new configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := worker.NewService(cfg, Version)
		if err != nil {
			return err
		}
		if err := svc.Start(); err != nil {
			return err
		}

		configWatcher := startConfigWatcher(config.SettingsPath(), cfg.SourcesFile)
		if configWatcher != nil {
			defer configWatcher.Stop()
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down worker")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return svc.Shutdown(ctx)
	},
}

// startConfigWatcher exits the process when a config file changes.
func startConfigWatcher(paths ...string) *watcher.Watcher {
	configWatcher, err := watcher.New(func(path string) {
		log.Warn().Str("path", path).Msg("Config file changed, exiting for restart...")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	}, paths...)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
		return nil
	}
	if err := configWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
		return nil
	}
	log.Info().Strs("paths", paths).Msg("Config file watcher started")
	return configWatcher
}
