package v1

import (
	"net/http"

	"github.com/gorilla/mux"

	"finchat/internal/gateway/handlers"
	"finchat/internal/storage"
)

const (
	defaultSessionPage = 50
	maxSessionPage     = 200
)

func (r *Router) sessionResponse(s *storage.Session) (SessionResponse, error) {
	n, err := r.db.CountMessages(s.ID)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{
		ID:           s.ID,
		Title:        s.Title,
		Metadata:     s.Metadata,
		MessageCount: n,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}, nil
}

// HandleListSessions lists sessions, most recently updated first.
func (r *Router) HandleListSessions(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit", defaultSessionPage)
	if err != nil {
		badRequest(w, err)
		return
	}
	offset, err := queryInt(req, "offset", 0)
	if err != nil {
		badRequest(w, err)
		return
	}
	limit = min(max(limit, 1), maxSessionPage)

	list, err := r.db.ListSessions(limit, offset)
	if err != nil {
		r.sendStoreError(w, err, "list sessions")
		return
	}

	sessions := make([]SessionResponse, 0, len(list))
	for _, s := range list {
		resp, err := r.sessionResponse(s)
		if err != nil {
			r.sendStoreError(w, err, "list sessions")
			return
		}
		sessions = append(sessions, resp)
	}
	handlers.SendJSON(w, http.StatusOK, SessionsListResponse{Sessions: sessions})
}

// HandleCreateSession creates a session. The body is optional.
func (r *Router) HandleCreateSession(w http.ResponseWriter, req *http.Request) {
	var body CreateSessionRequest
	if err := handlers.DecodeJSON(req, &body, true); err != nil {
		badRequest(w, err)
		return
	}

	var (
		s   *storage.Session
		err error
	)
	if body.ID != "" {
		s, err = r.db.CreateSessionWithID(body.ID, body.Title, body.Metadata)
	} else {
		s, err = r.db.CreateSession(body.Title, body.Metadata)
	}
	if err != nil {
		r.sendStoreError(w, err, "create session")
		return
	}

	r.log.Info().Str("session_id", s.ID).Msg("session created")
	handlers.SendJSON(w, http.StatusCreated, SessionResponse{
		ID:        s.ID,
		Title:     s.Title,
		Metadata:  s.Metadata,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// HandleGetSession returns one session.
func (r *Router) HandleGetSession(w http.ResponseWriter, req *http.Request) {
	s, err := r.db.GetSession(mux.Vars(req)["id"])
	if err != nil {
		r.sendStoreError(w, err, "get session")
		return
	}
	resp, err := r.sessionResponse(s)
	if err != nil {
		r.sendStoreError(w, err, "get session")
		return
	}
	handlers.SendJSON(w, http.StatusOK, resp)
}

// HandleDeleteSession deletes a session with its messages and snapshots.
func (r *Router) HandleDeleteSession(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if err := r.db.DeleteSession(id); err != nil {
		r.sendStoreError(w, err, "delete session")
		return
	}
	r.log.Info().Str("session_id", id).Msg("session deleted")
	handlers.SendJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "session deleted"})
}

// HandleGetMessages returns a session's messages oldest first. With
// ?limit=N only the newest N are returned.
func (r *Router) HandleGetMessages(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	limit, err := queryInt(req, "limit", 0)
	if err != nil {
		badRequest(w, err)
		return
	}

	if _, err := r.db.GetSession(id); err != nil {
		r.sendStoreError(w, err, "get messages")
		return
	}
	stored, err := r.db.GetMessages(id, limit)
	if err != nil {
		r.sendStoreError(w, err, "get messages")
		return
	}

	msgs := make([]MessageResponse, len(stored))
	for i, m := range stored {
		msgs[i] = toMessageResponse(m)
	}
	handlers.SendJSON(w, http.StatusOK, MessagesResponse{SessionID: id, Messages: msgs})
}

// HandleAppendMessage appends a user or assistant turn.
func (r *Router) HandleAppendMessage(w http.ResponseWriter, req *http.Request) {
	var body AppendMessageRequest
	if err := handlers.DecodeJSON(req, &body, false); err != nil {
		badRequest(w, err)
		return
	}

	m, err := r.db.AppendMessage(mux.Vars(req)["id"], body.Role, body.Content)
	if err != nil {
		r.sendStoreError(w, err, "append message")
		return
	}
	handlers.SendJSON(w, http.StatusCreated, toMessageResponse(m))
}
