package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/compaction"
	"finchat/internal/gateway/handlers"
	"finchat/internal/memory"
	"finchat/internal/storage"
)

type testAPI struct {
	t      *testing.T
	db     *storage.DB
	router *mux.Router
}

func newTestAPI(t *testing.T, s compaction.Summarizer) *testAPI {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := compaction.DefaultConfig()
	cfg.VerbatimTailSize = 2
	cfg.LayerGroupSize = 2
	cfg.SummarizerTimeout = time.Second
	svc := memory.NewContextService(db, compaction.MustNewEngine(cfg, s), 3, zerolog.Nop())

	router := mux.NewRouter()
	NewRouter(RouterDeps{DB: db, Contexts: svc, Version: "test", Logger: zerolog.Nop()}).RegisterRoutes(router)
	return &testAPI{t: t, db: db, router: router}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	resp := decode[handlers.ErrorResponse](t, w)
	assert.Equal(t, code, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Message)
}

func (a *testAPI) createSession(title string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Title: title})
	require.Equal(a.t, http.StatusCreated, w.Code)
	return decode[SessionResponse](a.t, w).ID
}

func (a *testAPI) appendTurns(id string, cycles int) {
	a.t.Helper()
	for i := 1; i <= cycles; i++ {
		w := a.do(http.MethodPost, "/api/v1/sessions/"+id+"/messages",
			AppendMessageRequest{Role: "user", Content: fmt.Sprintf("how much did I spend in month %d", i)})
		require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
		w = a.do(http.MethodPost, "/api/v1/sessions/"+id+"/messages",
			AppendMessageRequest{Role: "assistant", Content: fmt.Sprintf("you spent %d00 EUR", i)})
		require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
}

func TestSessions(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	anon := decode[SessionResponse](t, w)
	assert.NotEmpty(t, anon.ID)

	w = api.do(http.MethodPost, "/api/v1/sessions",
		CreateSessionRequest{ID: "s-1", Title: "Taxes", Metadata: json.RawMessage(`{"year":2025}`)})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s-1", decode[SessionResponse](t, w).ID)

	t.Run("duplicate id", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/v1/sessions", CreateSessionRequest{ID: "s-1"})
		assertError(t, w, http.StatusConflict, handlers.ErrCodeConflict)
	})

	t.Run("invalid body", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/v1/sessions", `{"title": 3}`)
		assertError(t, w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest)
	})

	t.Run("get", func(t *testing.T) {
		api.appendTurns("s-1", 1)
		w := api.do(http.MethodGet, "/api/v1/sessions/s-1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		got := decode[SessionResponse](t, w)
		assert.Equal(t, "Taxes", got.Title)
		assert.Equal(t, 2, got.MessageCount)
		assert.JSONEq(t, `{"year":2025}`, string(got.Metadata))
	})

	t.Run("list", func(t *testing.T) {
		w := api.do(http.MethodGet, "/api/v1/sessions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[SessionsListResponse](t, w).Sessions, 2)

		w = api.do(http.MethodGet, "/api/v1/sessions?limit=1&offset=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[SessionsListResponse](t, w).Sessions, 1)

		w = api.do(http.MethodGet, "/api/v1/sessions?limit=abc", nil)
		assertError(t, w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest)
	})

	t.Run("delete", func(t *testing.T) {
		w := api.do(http.MethodDelete, "/api/v1/sessions/"+anon.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = api.do(http.MethodGet, "/api/v1/sessions/"+anon.ID, nil)
		assertError(t, w, http.StatusNotFound, handlers.ErrCodeNotFound)

		w = api.do(http.MethodDelete, "/api/v1/sessions/"+anon.ID, nil)
		assertError(t, w, http.StatusNotFound, handlers.ErrCodeNotFound)
	})
}

func TestMessages(t *testing.T) {
	api := newTestAPI(t, nil)
	id := api.createSession("Groceries")
	api.appendTurns(id, 3)

	w := api.do(http.MethodGet, "/api/v1/sessions/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[MessagesResponse](t, w).Messages
	require.Len(t, all, 6)
	assert.Equal(t, compaction.RoleUser, all[0].Role)
	assert.Equal(t, "how much did I spend in month 1", all[0].Content)
	assert.Equal(t, "you spent 300 EUR", all[5].Content)
	assert.Contains(t, w.Body.String(), `"role":"assistant"`)

	w = api.do(http.MethodGet, "/api/v1/sessions/"+id+"/messages?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	last := decode[MessagesResponse](t, w).Messages
	require.Len(t, last, 2)
	assert.Equal(t, all[4].ID, last[0].ID)
	assert.Equal(t, all[5].ID, last[1].ID)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown role", "/api/v1/sessions/" + id + "/messages", AppendMessageRequest{Role: "system", Content: "x"}, http.StatusBadRequest, handlers.ErrCodeInvalidRequest},
		{"empty content", "/api/v1/sessions/" + id + "/messages", AppendMessageRequest{Role: "user", Content: "  "}, http.StatusBadRequest, handlers.ErrCodeInvalidRequest},
		{"missing body", "/api/v1/sessions/" + id + "/messages", nil, http.StatusBadRequest, handlers.ErrCodeInvalidRequest},
		{"unknown session", "/api/v1/sessions/nope/messages", AppendMessageRequest{Role: "user", Content: "hi"}, http.StatusNotFound, handlers.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, api.do(http.MethodPost, tt.path, tt.body), tt.status, tt.code)
		})
	}

	w = api.do(http.MethodGet, "/api/v1/sessions/nope/messages", nil)
	assertError(t, w, http.StatusNotFound, handlers.ErrCodeNotFound)
}

func TestContext(t *testing.T) {
	sum := compaction.SummarizerFunc(func(_ context.Context, text string, _ int) (string, error) {
		return "spent money", nil
	})
	api := newTestAPI(t, sum)
	id := api.createSession("Budget")

	w := api.do(http.MethodGet, "/api/v1/sessions/"+id+"/context", nil)
	assertError(t, w, http.StatusNotFound, handlers.ErrCodeNotFound)

	api.appendTurns(id, 6)

	w = api.do(http.MethodPost, "/api/v1/sessions/"+id+"/context", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	built := decode[ContextResponse](t, w)

	assert.Equal(t, id, built.SessionID)
	assert.Equal(t, 12, built.MessageCount)
	assert.Equal(t, 6, built.Stats.TotalCycles)
	assert.Equal(t, 2, built.Stats.VerbatimCount)
	assert.Equal(t, 2, built.Stats.LayerCount)
	assert.Zero(t, built.Stats.FallbackCount)
	assert.True(t, strings.HasPrefix(built.Context, compaction.CompressedHistoryHeader))
	assert.Contains(t, built.Context, "spent money")
	assert.Contains(t, built.Context, "you spent 600 EUR")

	w = api.do(http.MethodGet, "/api/v1/sessions/"+id+"/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode[ContextResponse](t, w)
	assert.Equal(t, built.SnapshotID, latest.SnapshotID)
	assert.Equal(t, built.Context, latest.Context)

	w = api.do(http.MethodPost, "/api/v1/sessions/nope/context", nil)
	assertError(t, w, http.StatusNotFound, handlers.ErrCodeNotFound)
	w = api.do(http.MethodGet, "/api/v1/sessions/nope/context", nil)
	assertError(t, w, http.StatusNotFound, handlers.ErrCodeNotFound)
}

func TestContext_SummarizerFailureStillSucceeds(t *testing.T) {
	sum := compaction.SummarizerFunc(func(context.Context, string, int) (string, error) {
		return "", fmt.Errorf("model overloaded")
	})
	api := newTestAPI(t, sum)
	id := api.createSession("")
	api.appendTurns(id, 5)

	w := api.do(http.MethodPost, "/api/v1/sessions/"+id+"/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ContextResponse](t, w)
	assert.Equal(t, resp.Stats.LayerCount, resp.Stats.FallbackCount)
	assert.Contains(t, resp.Context, "you spent 500 EUR")
}
