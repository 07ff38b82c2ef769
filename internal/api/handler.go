// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github-feed/internal/apperrors"
	"github-feed/internal/model"
)

// Engine is the refresh-engine surface the API exposes.
type Engine interface {
	ListStarred(ctx context.Context, refresh bool) ([]model.Repository, error)
	ListReleases(ctx context.Context, refresh bool, since *time.Time) ([]model.Release, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(engine Engine, logger *slog.Logger) http.Handler {
	h := &Handler{
		engine: engine,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/starred", h.getStarred)
		r.Get("/releases", h.getReleases)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStarred returns the stored starred repositories.
// GET /v1/starred?refresh=true
func (h *Handler) getStarred(w http.ResponseWriter, r *http.Request) {
	refresh, err := parseBoolParam(r, "refresh", true)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'refresh' parameter. Must be true or false.")
		return
	}

	repos, err := h.engine.ListStarred(r.Context(), refresh)
	if err != nil {
		h.respondWithEngineError(w, "Failed to list starred repositories", err)
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// getReleases returns releases discovered within the current window.
// GET /v1/releases?refresh=true&since=2024-01-01T00:00:00Z
func (h *Handler) getReleases(w http.ResponseWriter, r *http.Request) {
	refresh, err := parseBoolParam(r, "refresh", false)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'refresh' parameter. Must be true or false.")
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'since' parameter. Must be an RFC3339 timestamp.")
			return
		}
		since = &parsed
	}

	releases, err := h.engine.ListReleases(r.Context(), refresh, since)
	if err != nil {
		h.respondWithEngineError(w, "Failed to list releases", err)
		return
	}
	if releases == nil {
		releases = []model.Release{}
	}
	respondWithJSON(w, http.StatusOK, releases)
}

// respondWithEngineError translates the error taxonomy into status codes so
// a caller can distinguish "not authenticated" from "could not reach GitHub".
func (h *Handler) respondWithEngineError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	switch apperrors.KindOf(err) {
	case apperrors.KindAuthentication:
		respondWithError(w, http.StatusUnauthorized, "GitHub rejected the configured credential")
	case apperrors.KindGateway:
		respondWithError(w, http.StatusBadGateway, "Could not reach GitHub")
	case apperrors.KindNotFound:
		respondWithError(w, http.StatusNotFound, "Not found")
	case apperrors.KindValidation:
		respondWithError(w, http.StatusUnprocessableEntity, "Unexpected response from GitHub")
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseBoolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
