// Package httphandler serves the operator REST API.
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

const healthPingTimeout = 2 * time.Second

// Poller runs poll cycles. *application.PollService implements it.
type Poller interface {
	RunCycle(ctx context.Context) (model.CycleReport, error)
	RefreshRepo(ctx context.Context, repositoryID string) (model.RepoPollResult, error)
	Running() bool
}

// Catalog answers read queries about tracked repositories.
// *application.TrackingService implements it.
type Catalog interface {
	Overview(ctx context.Context) ([]application.TrackedView, error)
	OnTag(ctx context.Context, tagName string) ([]application.TrackedView, error)
}

// Storage reports whether the database answers. *sqlite.DB implements it.
type Storage interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	poller  Poller
	catalog Catalog
	storage Storage
	metrics http.Handler
	logger  *slog.Logger

	// lifetime bounds manually triggered cycles; background tracks them.
	lifetime   context.Context
	background sync.WaitGroup
}

// NewHandler creates a Handler with all required dependencies. Cycles started
// through the API run under lifetime. storage and metrics may be nil, in which
// case health skips the database check and /metrics is not served.
func NewHandler(
	lifetime context.Context,
	poller Poller,
	catalog Catalog,
	storage Storage,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		poller:   poller,
		catalog:  catalog,
		storage:  storage,
		metrics:  metrics,
		logger:   logger,
		lifetime: lifetime,
	}
}

// Wait blocks until every cycle started through the API has returned.
func (h *Handler) Wait() {
	h.background.Wait()
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("GET /api/v1/releases", h.ListReleasesByTag)
	mux.HandleFunc("POST /api/v1/repos/{id}/refresh", h.RefreshRepo)
	mux.HandleFunc("POST /api/v1/poll", h.TriggerPoll)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListRepos returns all tracked repositories with their latest known tag.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	views, err := h.catalog.Overview(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toRepoResponse(v))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListReleasesByTag returns the repositories whose latest known release has the given tag.
func (h *Handler) ListReleasesByTag(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	if tag == "" {
		writeError(w, http.StatusBadRequest, "missing tag query parameter")
		return
	}

	views, err := h.catalog.OnTag(r.Context(), tag)
	if err != nil {
		h.logger.Error("failed to list releases", "tag", tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toRepoResponse(v))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RefreshRepo polls a single repository immediately and returns the result.
func (h *Handler) RefreshRepo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := h.poller.RefreshRepo(r.Context(), id)
	if err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.logger.Error("failed to refresh repo", "repository_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toPollResultResponse(result))
}

// TriggerPoll starts a poll cycle in the background.
func (h *Handler) TriggerPoll(w http.ResponseWriter, _ *http.Request) {
	if h.poller.Running() {
		writeError(w, http.StatusConflict, "poll cycle already in progress")
		return
	}

	// The request context ends with the response; the cycle outlives it.
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		if _, err := h.poller.RunCycle(h.lifetime); err != nil {
			if errors.Is(err, application.ErrCycleInProgress) {
				h.logger.Debug("manual poll skipped", "error", err)
				return
			}
			h.logger.Error("manual poll cycle failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "started"})
}

// Health reports 200 when the bot is up and its database answers, 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()

		if err := h.storage.Ping(ctx); err != nil {
			h.logger.Error("health check: database unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Time: now})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: now})
}
