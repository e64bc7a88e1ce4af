// Package pipeline runs one semantic dedup pass for a tenant.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/semdedup/internal/dedup"
	"github.com/thebtf/semdedup/internal/embedding"
	"github.com/thebtf/semdedup/internal/source"
	"github.com/thebtf/semdedup/pkg/models"
	"github.com/thebtf/semdedup/pkg/similarity"
)

// Defaults.
const (
	DefaultRunTimeout   = 10 * time.Minute
	DefaultStoreTimeout = 15 * time.Second
)

// Notes attached to summaries that did no clustering work.
const (
	NoteNoMessages      = "no eligible messages for tenant"
	NoteAllClustered    = "all messages are already clustered"
	NoteNoEmbeddings    = "no embeddings could be created"
	NoteCancelledBefore = "run cancelled before clustering"
)

// Configuration errors. Run returns them wrapped; nothing is processed.
var (
	ErrMissingTenant = errors.New("tenant_id is required")
	ErrUnknownSource = errors.New("unknown source")
	ErrNoStore       = errors.New("cluster store is not configured")
	ErrNoEmbedder    = errors.New("embedding capability is not configured")
	ErrNoSources     = errors.New("source registry is not configured")
)

// ClusterStore is the persistence capability the orchestrator needs.
type ClusterStore interface {
	ExistingDigests(ctx context.Context, tenantID string, digests []string) (map[string]struct{}, error)
	CreateCluster(ctx context.Context, cluster *models.Cluster, members []*models.ClusterMember) (int64, error)
}

// Sources resolves a source kind to a readable source.
type Sources interface {
	Get(kind models.SourceKind) (source.Source, error)
}

// Recorder receives finished run summaries.
type Recorder interface {
	RecordRun(ctx context.Context, s *models.RunSummary)
	RecordFailure()
}

// Config tunes one orchestrator.
type Config struct {
	Threshold    float64
	MinLength    int
	MaxLimit     int
	RunTimeout   time.Duration
	StoreTimeout time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:    similarity.DefaultThreshold,
		MinLength:    dedup.DefaultMinLength,
		MaxLimit:     models.MaxRunLimit,
		RunTimeout:   DefaultRunTimeout,
		StoreTimeout: DefaultStoreTimeout,
	}
}

// Orchestrator wires the stages of a dedup run.
type Orchestrator struct {
	sources  Sources
	store    ClusterStore
	batcher  *embedding.Batcher
	filter   *dedup.Filter
	cfg      Config
	recorder Recorder
	onDone   []func(*models.RunSummary)
}

// New creates an orchestrator. Zero config values fall back to defaults.
func New(sources Sources, store ClusterStore, batcher *embedding.Batcher, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	return &Orchestrator{
		sources: sources,
		store:   store,
		batcher: batcher,
		filter:  dedup.NewFilter(cfg.MinLength),
		cfg:     cfg,
	}
}

// SetRecorder sets the metrics recorder.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// OnComplete registers a callback invoked with every finished summary.
func (o *Orchestrator) OnComplete(fn func(*models.RunSummary)) {
	o.onDone = append(o.onDone, fn)
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run executes one pass: fetch, exact dedup, already-clustered check, embed,
// cluster, persist. Configuration and store read errors are returned; per-item
// and per-cluster errors are counted in the summary. Cancellation returns the
// summary so far with Cancelled set and a nil error.
func (o *Orchestrator) Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error) {
	start := time.Now()

	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return nil, o.fail(fmt.Errorf("run: %w", ErrMissingTenant))
	}
	kind, err := models.ParseSourceKind(req.Source)
	if err != nil {
		return nil, o.fail(fmt.Errorf("run: %w: %q", ErrUnknownSource, req.Source))
	}
	if o.store == nil {
		return nil, o.fail(fmt.Errorf("run: %w", ErrNoStore))
	}
	if o.batcher == nil {
		return nil, o.fail(fmt.Errorf("run: %w", ErrNoEmbedder))
	}
	if o.sources == nil {
		return nil, o.fail(fmt.Errorf("run: %w", ErrNoSources))
	}
	src, err := o.sources.Get(kind)
	if err != nil {
		return nil, o.fail(fmt.Errorf("run: %w: %v", ErrUnknownSource, err))
	}

	summary := &models.RunSummary{
		RunID:    uuid.NewString(),
		TenantID: tenantID,
		Source:   kind,
	}
	logger := log.With().
		Str("run_id", summary.RunID).
		Str("tenant_id", tenantID).
		Str("source", string(kind)).
		Logger()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	if err := o.run(ctx, &logger, src, req.EffectiveLimit(o.cfg.MaxLimit), summary); err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("Dedup run failed")
			return nil, o.fail(err)
		}
		summary.Cancelled = true
	}

	summary.DurationMS = time.Since(start).Milliseconds()
	o.finish(ctx, &logger, summary)
	return summary, nil
}

// run performs the stages and fills summary in place.
func (o *Orchestrator) run(ctx context.Context, logger *zerolog.Logger, src source.Source, limit int, summary *models.RunSummary) error {
	messages, err := src.FetchCandidates(ctx, summary.TenantID, limit)
	if err != nil {
		return fmt.Errorf("fetch candidates: %w", err)
	}
	summary.MessagesProcessed = len(messages)
	if len(messages) == 0 {
		summary.Note = NoteNoMessages
		return nil
	}

	filtered := o.filter.Apply(messages)
	summary.UniqueAfterHashDedup = len(filtered.Unique)
	summary.DuplicatesSkipped = filtered.Duplicates
	summary.TooShort = filtered.TooShort
	if len(filtered.Unique) == 0 {
		summary.Note = NoteNoMessages
		return nil
	}

	existing, err := o.existingDigests(ctx, summary.TenantID, filtered.Digests())
	if err != nil {
		return err
	}
	remaining := dedup.Exclude(filtered.Unique, existing)
	summary.AlreadyClustered = len(filtered.Unique) - len(remaining)
	if len(remaining) == 0 {
		summary.Note = NoteAllClustered
		return nil
	}

	logger.Debug().
		Int("messages", summary.MessagesProcessed).
		Int("unique", summary.UniqueAfterHashDedup).
		Int("remaining", len(remaining)).
		Msg("Embedding new messages")

	inputs := make([]embedding.Input, len(remaining))
	for i, m := range remaining {
		inputs[i] = embedding.Input{Key: m.Digest, Text: m.Normalized}
	}
	outcome, err := o.batcher.EmbedAll(ctx, inputs)
	if outcome != nil {
		summary.EmbeddingsCreated = outcome.Created
		summary.Errors += outcome.Failed
	}
	if err != nil {
		summary.Note = NoteCancelledBefore
		return err
	}

	items := make([]similarity.Item, 0, outcome.Created)
	embedded := make([]models.NormalizedMessage, 0, outcome.Created)
	for i, vec := range outcome.Vectors {
		if vec == nil {
			continue
		}
		items = append(items, similarity.Item{Key: remaining[i].Digest, Vector: vec})
		embedded = append(embedded, remaining[i])
	}
	if len(items) == 0 {
		summary.Note = NoteNoEmbeddings
		return nil
	}

	groups := similarity.GreedyCluster(items, o.cfg.Threshold)
	logger.Debug().
		Int("items", len(items)).
		Int("groups", len(groups)).
		Float64("threshold", o.cfg.Threshold).
		Msg("Greedy clustering completed")

	return o.persist(ctx, logger, groups, items, embedded, summary)
}

// existingDigests queries the store under the per-call timeout.
func (o *Orchestrator) existingDigests(ctx context.Context, tenantID string, digests []string) (map[string]struct{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	existing, err := o.store.ExistingDigests(callCtx, tenantID, digests)
	if err != nil {
		return nil, fmt.Errorf("check existing digests: %w", err)
	}
	return existing, nil
}

// persist writes one cluster per group. A failed cluster is logged and counted.
func (o *Orchestrator) persist(ctx context.Context, logger *zerolog.Logger, groups []similarity.Group, items []similarity.Item, embedded []models.NormalizedMessage, summary *models.RunSummary) error {
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		canonical := embedded[g.Canonical]
		cluster := &models.Cluster{
			TenantID:        summary.TenantID,
			CanonicalText:   canonical.Normalized,
			CanonicalVector: models.Vector(items[g.Canonical].Vector),
			MemberCount:     g.Size(),
			AvgSimilarity:   g.AvgSimilarity(),
		}
		members := make([]*models.ClusterMember, g.Size())
		for k, idx := range g.Members {
			msg := embedded[idx]
			members[k] = &models.ClusterMember{
				TenantID:        summary.TenantID,
				MessageText:     strings.TrimSpace(msg.Candidate.RawText),
				Digest:          msg.Digest,
				SimilarityScore: g.Scores[k],
				SourceType:      msg.Candidate.Source,
				SourceReference: msg.Candidate.ID,
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
		_, err := o.store.CreateCluster(callCtx, cluster, members)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary.Errors++
			logger.Warn().
				Err(err).
				Str("digest", canonical.Digest).
				Int("members", len(members)).
				Msg("Failed to persist cluster, continuing")
			continue
		}
		summary.ClustersCreated++
	}
	return nil
}

func (o *Orchestrator) fail(err error) error {
	if o.recorder != nil {
		o.recorder.RecordFailure()
	}
	return err
}

func (o *Orchestrator) finish(ctx context.Context, logger *zerolog.Logger, summary *models.RunSummary) {
	event := logger.Info()
	if summary.Cancelled {
		event = logger.Warn()
	}
	event.
		Int("messages", summary.MessagesProcessed).
		Int("unique", summary.UniqueAfterHashDedup).
		Int("duplicates", summary.DuplicatesSkipped).
		Int("alreadyClustered", summary.AlreadyClustered).
		Int("embeddings", summary.EmbeddingsCreated).
		Int("clusters", summary.ClustersCreated).
		Int("errors", summary.Errors).
		Int64("durationMs", summary.DurationMS).
		Bool("cancelled", summary.Cancelled).
		Msg("Dedup run completed")

	if o.recorder != nil {
		o.recorder.RecordRun(context.WithoutCancel(ctx), summary)
	}
	for _, fn := range o.onDone {
		fn(summary)
	}
}
