// Package v1 implements the finchat HTTP API, version 1.
package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"finchat/internal/gateway/handlers"
	"finchat/internal/memory"
	"finchat/internal/storage"
)

// RouterDeps holds the dependencies of the API handlers.
type RouterDeps struct {
	DB       *storage.DB
	Contexts *memory.ContextService
	Version  string
	Logger   zerolog.Logger
}

// Router serves the v1 API.
type Router struct {
	db       *storage.DB
	contexts *memory.ContextService
	version  string
	log      zerolog.Logger
}

// NewRouter creates a Router. DB and Contexts must be set.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		db:       deps.DB,
		contexts: deps.Contexts,
		version:  deps.Version,
		log:      deps.Logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the v1 routes on router.
func (r *Router) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", r.HandleHealth).Methods(http.MethodGet)

	// Sessions
	v1.HandleFunc("/sessions", r.HandleListSessions).Methods(http.MethodGet)
	v1.HandleFunc("/sessions", r.HandleCreateSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", r.HandleGetSession).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", r.HandleDeleteSession).Methods(http.MethodDelete)

	// Messages
	v1.HandleFunc("/sessions/{id}/messages", r.HandleGetMessages).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/messages", r.HandleAppendMessage).Methods(http.MethodPost)

	// Compacted context
	v1.HandleFunc("/sessions/{id}/context", r.HandleBuildContext).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/context", r.HandleGetContext).Methods(http.MethodGet)
}

// HandleHealth reports the health of the API and its dependencies.
func (r *Router) HandleHealth(w http.ResponseWriter, req *http.Request) {
	components := map[string]ComponentHealth{
		"database": {Status: "healthy"},
	}
	if err := r.db.PingContext(req.Context()); err != nil {
		components["database"] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
	}
	if r.contexts == nil {
		components["context_service"] = ComponentHealth{Status: "disabled"}
	} else {
		components["context_service"] = ComponentHealth{Status: "healthy"}
	}

	status := "healthy"
	for _, c := range components {
		if c.Status == "unhealthy" {
			status = "degraded"
			break
		}
	}

	handlers.SendJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Version:    r.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	})
}

// sendStoreError maps storage and context errors onto HTTP responses.
func (r *Router) sendStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "session not found")
	case errors.Is(err, storage.ErrExists):
		handlers.SendError(w, http.StatusConflict, handlers.ErrCodeConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidRole),
		errors.Is(err, storage.ErrEmptyText),
		errors.Is(err, storage.ErrInvalidMeta):
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		handlers.SendError(w, http.StatusGatewayTimeout, handlers.ErrCodeGatewayTimeout, action+" timed out")
	default:
		r.log.Error().Err(err).Str("action", action).Msg("request failed")
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to "+action)
	}
}

func badRequest(w http.ResponseWriter, err error) {
	handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(req *http.Request, name string, def int) (int, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
