package v1

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"finchat/internal/gateway/handlers"
	"finchat/internal/storage"
)

// HandleBuildContext compacts the session's current log and returns the
// new snapshot. Summarizer failures degrade to truncated layers and are
// visible in stats.fallback_count, never as an error status.
func (r *Router) HandleBuildContext(w http.ResponseWriter, req *http.Request) {
	snap, err := r.contexts.BuildContext(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.sendStoreError(w, err, "build context")
		return
	}
	handlers.SendJSON(w, http.StatusOK, toContextResponse(snap))
}

// HandleGetContext returns the latest stored snapshot without rebuilding.
func (r *Router) HandleGetContext(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if _, err := r.db.GetSession(id); err != nil {
		r.sendStoreError(w, err, "get context")
		return
	}

	snap, err := r.contexts.LatestSnapshot(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no context built for session yet")
			return
		}
		r.sendStoreError(w, err, "get context")
		return
	}
	handlers.SendJSON(w, http.StatusOK, toContextResponse(snap))
}
