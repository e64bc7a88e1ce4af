package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/semdedup/internal/lock"
	"github.com/thebtf/semdedup/pkg/models"
)

// runScheduler runs a pass for every tenant on each tick until ctx is done.
func (s *Service) runScheduler(ctx context.Context, interval time.Duration, tenants []string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", interval).
		Int("tenants", len(tenants)).
		Msg("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduledPass(ctx, tenants)
		}
	}
}

// runScheduledPass runs one pass per tenant sequentially.
// Tenants already running elsewhere are skipped.
func (s *Service) runScheduledPass(ctx context.Context, tenants []string) {
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return
		}
		_, err := s.RunOnce(ctx, models.RunRequest{TenantID: tenantID})
		switch {
		case err == nil:
		case errors.Is(err, lock.ErrHeld):
			log.Debug().Str("tenant_id", tenantID).Msg("Scheduled run skipped, tenant busy")
		default:
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("Scheduled run failed")
		}
	}
}
