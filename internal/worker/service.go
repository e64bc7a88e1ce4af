// Package worker provides the HTTP worker service for semdedup.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thebtf/semdedup/internal/config"
	gormdb "github.com/thebtf/semdedup/internal/db/gorm"
	"github.com/thebtf/semdedup/internal/embedding"
	"github.com/thebtf/semdedup/internal/lock"
	"github.com/thebtf/semdedup/internal/metrics"
	"github.com/thebtf/semdedup/internal/pipeline"
	"github.com/thebtf/semdedup/internal/source"
	"github.com/thebtf/semdedup/internal/worker/sse"
	"github.com/thebtf/semdedup/pkg/models"
)

// Runner executes one dedup pass.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error)
}

// ClusterReader is the read side of the cluster store used by the API.
type ClusterReader interface {
	ListClusters(ctx context.Context, tenantID string, limit int) ([]*models.Cluster, error)
	GetCluster(ctx context.Context, tenantID string, id int64) (*models.Cluster, error)
	ListMembers(ctx context.Context, tenantID string, clusterID int64) ([]*models.ClusterMember, error)
}

// Service is the worker: HTTP API, scheduler and the shared pipeline.
type Service struct {
	version        string
	config         *config.Config
	store          *gormdb.Store
	clusters       ClusterReader
	runner         Runner
	locker         lock.Locker
	metrics        *metrics.Metrics
	sseBroadcaster *sse.Broadcaster
	router         chi.Router
	server         *http.Server
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time
	ready          atomic.Bool
	wg             sync.WaitGroup
}

// NewService opens the store and wires the pipeline from cfg.
func NewService(cfg *config.Config, version string) (*Service, error) {
	store, err := gormdb.NewStore(gormdb.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DatabaseURL,
		MaxConns:        cfg.MaxConns,
		LogLevel:        gormlogger.Silent,
		DevSourceTables: cfg.DevSourceTables,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tables, err := source.LoadTables(cfg.SourcesFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client, err := embedding.NewHTTPClient(cfg.EmbeddingConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	batcher := embedding.NewBatcher(client)
	batcher.BatchSize = cfg.BatchSize
	batcher.Concurrency = cfg.Concurrency
	batcher.Delay = cfg.BatchDelay
	batcher.CallTimeout = cfg.EmbeddingTimeout

	clusterStore := gormdb.NewClusterStore(store)
	registry := source.NewRegistry(gormdb.NewMessageStore(store), tables)
	orchestrator := pipeline.New(registry, clusterStore, batcher, cfg.PipelineConfig())

	svc := newService(cfg, version, clusterStore, orchestrator, newLocker(cfg))
	svc.store = store
	orchestrator.SetRecorder(svc.metrics)
	orchestrator.OnComplete(svc.sseBroadcaster.PublishRun)

	log.Info().
		Str("driver", store.Driver()).
		Str("embeddingModel", client.Model()).
		Float64("threshold", orchestrator.Config().Threshold).
		Msg("Pipeline configured")

	return svc, nil
}

// newService builds a service around already constructed parts.
func newService(cfg *config.Config, version string, clusters ClusterReader, runner Runner, locker lock.Locker) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        version,
		config:         cfg,
		clusters:       clusters,
		runner:         runner,
		locker:         locker,
		metrics:        metrics.New(),
		sseBroadcaster: sse.NewBroadcaster(),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// newLocker picks the Redis lock when a Redis URL is configured.
func newLocker(cfg *config.Config) lock.Locker {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = cfg.RunTimeout + time.Minute
	}
	return lock.NewRedisLocker(lock.NewRedisPool(cfg.RedisURL), ttl)
}

// setupRoutes registers all HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", serveIndex)
	s.router.Get("/api/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Get("/api/metrics", s.handleMetrics)
		r.Get("/api/events", s.sseBroadcaster.HandleSSE)

		r.Route("/api/semantic-dedup", func(r chi.Router) {
			r.Post("/run", s.handleRun)
			r.Get("/clusters", s.handleListClusters)
			r.Get("/clusters/{id}/members", s.handleListMembers)
		})
	})
}

// requireReady rejects API calls until the service has started.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service is starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP and, when configured, the scheduler.
func (s *Service) Start() error {
	addr := net.JoinHostPort(s.config.WorkerHost, strconv.Itoa(s.config.WorkerPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	if s.config.ScheduleInterval > 0 && len(s.config.ScheduleTenants) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runScheduler(s.ctx, s.config.ScheduleInterval, s.config.ScheduleTenants)
		}()
	}

	s.ready.Store(true)
	log.Info().
		Str("addr", addr).
		Str("version", s.version).
		Msg("Worker service started")
	return nil
}

// RunOnce runs the pipeline for one tenant under the tenant lock.
func (s *Service) RunOnce(ctx context.Context, req models.RunRequest) (*models.RunSummary, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return nil, fmt.Errorf("run: %w", pipeline.ErrMissingTenant)
	}

	release, err := s.locker.TryAcquire(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	s.sseBroadcaster.Publish(sse.Event{Type: sse.EventRunStarted, TenantID: req.TenantID, Data: req})
	summary, err := s.runner.Run(ctx, req)
	if err != nil {
		s.sseBroadcaster.Publish(sse.Event{Type: sse.EventRunFailed, TenantID: req.TenantID, Data: err.Error()})
		return nil, err
	}
	return summary, nil
}

// Shutdown stops the scheduler and the HTTP server, then closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()

	var errs []error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	s.wg.Wait()

	if closer, ok := s.locker.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close locker: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	log.Info().Msg("Worker service stopped")
	return errors.Join(errs...)
}
