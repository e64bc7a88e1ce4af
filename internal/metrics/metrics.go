// Package metrics tracks pipeline run statistics.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/semdedup/pkg/models"
)

const meterName = "github.com/thebtf/semdedup/pipeline"

// recentWindow bounds the number of run durations kept for percentiles.
const recentWindow = 500

// Metrics tracks run statistics in-process and mirrors them to OpenTelemetry
// instruments on the global meter provider.
type Metrics struct {
	startTime       time.Time
	recentDurations []time.Duration
	durationsMu     sync.Mutex

	runs              atomic.Int64
	cancelledRuns     atomic.Int64
	failedRuns        atomic.Int64
	messagesProcessed atomic.Int64
	duplicatesSkipped atomic.Int64
	alreadyClustered  atomic.Int64
	embeddingsCreated atomic.Int64
	clustersCreated   atomic.Int64
	errors            atomic.Int64
	totalDuration     atomic.Int64 // Sum in milliseconds

	runCounter     metric.Int64Counter
	messageCounter metric.Int64Counter
	clusterCounter metric.Int64Counter
	embedCounter   metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// New creates a metrics tracker. Instrument creation failures are logged and
// leave that instrument unset; the in-process snapshot still works.
func New() *Metrics {
	m := &Metrics{
		startTime:       time.Now(),
		recentDurations: make([]time.Duration, 0, recentWindow),
	}

	meter := otel.Meter(meterName)
	var err error
	if m.runCounter, err = meter.Int64Counter("semdedup.runs",
		metric.WithDescription("Completed dedup runs")); err != nil {
		log.Warn().Err(err).Msg("Failed to create runs counter")
	}
	if m.messageCounter, err = meter.Int64Counter("semdedup.messages",
		metric.WithDescription("Candidate messages read")); err != nil {
		log.Warn().Err(err).Msg("Failed to create messages counter")
	}
	if m.clusterCounter, err = meter.Int64Counter("semdedup.clusters",
		metric.WithDescription("Clusters persisted")); err != nil {
		log.Warn().Err(err).Msg("Failed to create clusters counter")
	}
	if m.embedCounter, err = meter.Int64Counter("semdedup.embeddings",
		metric.WithDescription("Embeddings created")); err != nil {
		log.Warn().Err(err).Msg("Failed to create embeddings counter")
	}
	if m.errorCounter, err = meter.Int64Counter("semdedup.errors",
		metric.WithDescription("Per-item and per-cluster errors")); err != nil {
		log.Warn().Err(err).Msg("Failed to create errors counter")
	}
	if m.durationHist, err = meter.Float64Histogram("semdedup.run.duration",
		metric.WithDescription("Run wall-clock duration"),
		metric.WithUnit("ms")); err != nil {
		log.Warn().Err(err).Msg("Failed to create duration histogram")
	}
	return m
}

// RecordRun records a finished run summary.
func (m *Metrics) RecordRun(ctx context.Context, s *models.RunSummary) {
	if s == nil {
		return
	}
	m.runs.Add(1)
	if s.Cancelled {
		m.cancelledRuns.Add(1)
	}
	m.messagesProcessed.Add(int64(s.MessagesProcessed))
	m.duplicatesSkipped.Add(int64(s.DuplicatesSkipped))
	m.alreadyClustered.Add(int64(s.AlreadyClustered))
	m.embeddingsCreated.Add(int64(s.EmbeddingsCreated))
	m.clustersCreated.Add(int64(s.ClustersCreated))
	m.errors.Add(int64(s.Errors))
	m.totalDuration.Add(s.DurationMS)

	// Track recent durations
	m.durationsMu.Lock()
	m.recentDurations = append(m.recentDurations, time.Duration(s.DurationMS)*time.Millisecond)
	if len(m.recentDurations) > recentWindow {
		m.recentDurations = m.recentDurations[len(m.recentDurations)-recentWindow:]
	}
	m.durationsMu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("source", string(s.Source)),
		attribute.Bool("cancelled", s.Cancelled),
	)
	if m.runCounter != nil {
		m.runCounter.Add(ctx, 1, attrs)
	}
	if m.messageCounter != nil {
		m.messageCounter.Add(ctx, int64(s.MessagesProcessed), attrs)
	}
	if m.clusterCounter != nil {
		m.clusterCounter.Add(ctx, int64(s.ClustersCreated), attrs)
	}
	if m.embedCounter != nil {
		m.embedCounter.Add(ctx, int64(s.EmbeddingsCreated), attrs)
	}
	if m.errorCounter != nil {
		m.errorCounter.Add(ctx, int64(s.Errors), attrs)
	}
	if m.durationHist != nil {
		m.durationHist.Record(ctx, float64(s.DurationMS), attrs)
	}
}

// RecordFailure records a run that ended with a configuration or store error.
func (m *Metrics) RecordFailure() {
	m.failedRuns.Add(1)
}

// GetSnapshot returns current metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	m.durationsMu.Lock()
	defer m.durationsMu.Unlock()

	runs := m.runs.Load()
	snapshot := Snapshot{
		Runs:              runs,
		CancelledRuns:     m.cancelledRuns.Load(),
		FailedRuns:        m.failedRuns.Load(),
		MessagesProcessed: m.messagesProcessed.Load(),
		DuplicatesSkipped: m.duplicatesSkipped.Load(),
		AlreadyClustered:  m.alreadyClustered.Load(),
		EmbeddingsCreated: m.embeddingsCreated.Load(),
		ClustersCreated:   m.clustersCreated.Load(),
		Errors:            m.errors.Load(),
		UptimeSeconds:     int64(time.Since(m.startTime).Seconds()),
	}

	if runs > 0 {
		snapshot.AvgDurationMS = m.totalDuration.Load() / runs
	}

	// Calculate percentiles
	if len(m.recentDurations) > 0 {
		sorted := make([]time.Duration, len(m.recentDurations))
		copy(sorted, m.recentDurations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		snapshot.P50DurationMS = percentile(sorted, 0.50).Milliseconds()
		snapshot.P95DurationMS = percentile(sorted, 0.95).Milliseconds()
	}

	return snapshot
}

// Snapshot represents a point-in-time metrics snapshot.
type Snapshot struct {
	Runs              int64 `json:"runs"`
	CancelledRuns     int64 `json:"cancelled_runs"`
	FailedRuns        int64 `json:"failed_runs"`
	MessagesProcessed int64 `json:"messages_processed"`
	DuplicatesSkipped int64 `json:"duplicates_skipped"`
	AlreadyClustered  int64 `json:"already_clustered"`
	EmbeddingsCreated int64 `json:"embeddings_created"`
	ClustersCreated   int64 `json:"clusters_created"`
	Errors            int64 `json:"errors"`
	AvgDurationMS     int64 `json:"avg_duration_ms"`
	P50DurationMS     int64 `json:"p50_duration_ms"`
	P95DurationMS     int64 `json:"p95_duration_ms"`
	UptimeSeconds     int64 `json:"uptime_seconds"`
}

// percentile calculates the Nth percentile from a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// String returns a human-readable representation of metrics.
func (s Snapshot) String() string {
	return fmt.Sprintf(`Semantic Dedup Metrics:
  Runs: %d (cancelled: %d, failed: %d)
  Messages: %d (duplicates: %d, already clustered: %d)
  Embeddings: %d, Clusters: %d, Errors: %d
  Duration: avg %dms (p50: %dms, p95: %dms)
  Uptime: %ds`,
		s.Runs, s.CancelledRuns, s.FailedRuns,
		s.MessagesProcessed, s.DuplicatesSkipped, s.AlreadyClustered,
		s.EmbeddingsCreated, s.ClustersCreated, s.Errors,
		s.AvgDurationMS, s.P50DurationMS, s.P95DurationMS,
		s.UptimeSeconds,
	)
}
