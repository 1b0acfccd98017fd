// Package api serves a read-only HTTP view of targets and deploy history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/store"
)

// ReleaseLister inspects the release directories of a host.
// deployer.Deployer implements it.
type ReleaseLister interface {
	Releases(ctx context.Context, target release.DeploymentTarget, host string) ([]release.ReleaseRecord, error)
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store    store.Store
	targets  map[string]release.DeploymentTarget
	releases ReleaseLister
	logger   *slog.Logger
}

// NewHandler creates a new API handler. releases may be nil, which disables
// the per-host release listing.
func NewHandler(s store.Store, targets map[string]release.DeploymentTarget, releases ReleaseLister, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:    s,
		targets:  targets,
		releases: releases,
		logger:   l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/targets", func(r chi.Router) {
			r.Get("/", h.handleListTargets)
			r.Get("/{name}", h.handleGetTarget)
			r.Get("/{name}/deploys", h.handleListDeploys)
			r.Get("/{name}/hosts/{host}/releases", h.handleListReleases)
		})
		r.Get("/deploys/{id}", h.handleGetDeploy)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleListTargets(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.targets))
	for name := range h.targets {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := make([]TargetResponse, 0, len(names))
	for _, name := range names {
		resp = append(resp, targetToResponse(h.targets[name]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, targetToResponse(target))
}

func (h *Handler) handleListDeploys(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}

	opts := store.DefaultListOptions()
	query := r.URL.Query()
	if limit := query.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := query.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts.Host = query.Get("host")

	records, err := h.store.ListDeployRecords(r.Context(), target.Name, opts)
	if err != nil {
		h.logger.Error("failed to list deploys", "target", target.Name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deploys", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGetDeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.store.GetDeployRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "deploy not found", "deploy_not_found")
			return
		}
		h.logger.Error("failed to get deploy", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deploy", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleListReleases(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	if h.releases == nil {
		h.writeError(w, http.StatusNotImplemented, "release inspection is disabled", "not_implemented")
		return
	}

	host := chi.URLParam(r, "host")
	if !hasHost(target, host) {
		h.writeError(w, http.StatusNotFound, "host not found", "host_not_found")
		return
	}

	records, err := h.releases.Releases(r.Context(), target, host)
	if err != nil {
		h.logger.Error("failed to list releases", "target", target.Name, "host", host, "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error(), "host_error")
		return
	}
	if records == nil {
		records = []release.ReleaseRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// Helpers
// =============================================================================

// target looks up the {name} URL parameter, writing a 404 when unknown.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (release.DeploymentTarget, bool) {
	target, ok := h.targets[chi.URLParam(r, "name")]
	if !ok {
		h.writeError(w, http.StatusNotFound, "target not found", "target_not_found")
	}
	return target, ok
}

func hasHost(target release.DeploymentTarget, host string) bool {
	for _, h := range target.Hosts {
		if h == host {
			return true
		}
	}
	return false
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
