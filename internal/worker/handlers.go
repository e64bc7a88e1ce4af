package worker

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/semdedup/internal/db/gorm"
	"github.com/thebtf/semdedup/internal/lock"
	"github.com/thebtf/semdedup/internal/pipeline"
	"github.com/thebtf/semdedup/pkg/models"
)

const (
	// DefaultClusterListLimit is the page size of the cluster listing.
	DefaultClusterListLimit = 50
	// MaxClusterListLimit caps the cluster listing.
	MaxClusterListLimit = 500
)

// clusterList is the response of the cluster listing.
type clusterList struct {
	TenantID string            `json:"tenant_id"`
	Clusters []*models.Cluster `json:"clusters"`
	Count    int               `json:"count"`
}

// memberList is the response of the member listing.
type memberList struct {
	Cluster *models.Cluster         `json:"cluster"`
	Members []*models.ClusterMember `json:"members"`
}

// handleRun triggers a dedup pass and returns its summary.
func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The run outlives a dropped client; the run timeout still applies.
	ctx := context.WithoutCancel(r.Context())
	summary, err := s.RunOnce(ctx, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, pipeline.ErrMissingTenant), errors.Is(err, pipeline.ErrUnknownSource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrHeld):
		writeError(w, http.StatusConflict, "a run is already in progress for this tenant")
	default:
		log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Run request failed")
		writeError(w, http.StatusInternalServerError, "run failed")
	}
}

// handleListClusters lists a tenant's clusters, largest first.
func (s *Service) handleListClusters(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	limit := gormdb.ParseLimitParam(r, DefaultClusterListLimit, MaxClusterListLimit)

	clusters, err := s.clusters.ListClusters(r.Context(), tenantID, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("List clusters failed")
		writeError(w, http.StatusInternalServerError, "failed to list clusters")
		return
	}
	if clusters == nil {
		clusters = []*models.Cluster{}
	}

	writeJSON(w, http.StatusOK, clusterList{
		TenantID: tenantID,
		Clusters: clusters,
		Count:    len(clusters),
	})
}

// handleListMembers returns one cluster with its members.
func (s *Service) handleListMembers(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid cluster id")
		return
	}

	cluster, err := s.clusters.GetCluster(r.Context(), tenantID, id)
	if errors.Is(err, gormdb.ErrClusterNotFound) {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("cluster_id", id).Msg("Get cluster failed")
		writeError(w, http.StatusInternalServerError, "failed to load cluster")
		return
	}

	members, err := s.clusters.ListMembers(r.Context(), tenantID, id)
	if err != nil {
		log.Error().Err(err).Int64("cluster_id", id).Msg("List members failed")
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []*models.ClusterMember{}
	}

	writeJSON(w, http.StatusOK, memberList{Cluster: cluster, Members: members})
}

// handleHealth reports liveness and readiness.
func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	code := http.StatusOK
	if !s.ready.Load() {
		status = "starting"
		code = http.StatusServiceUnavailable
	}
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleMetrics returns the run metrics snapshot.
func (s *Service) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetSnapshot())
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
