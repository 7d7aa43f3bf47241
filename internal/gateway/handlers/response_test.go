package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "send object",
			status:     http.StatusOK,
			data:       map[string]string{"key": "value"},
			wantStatus: http.StatusOK,
			wantBody:   `{"key":"value"}`,
		},
		{
			name:       "send nil",
			status:     http.StatusNoContent,
			data:       nil,
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendJSON(w, tt.status, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			} else {
				assert.Empty(t, w.Body.String())
			}
		})
	}
}

func TestSendError(t *testing.T) {
	w := httptest.NewRecorder()
	SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "bad request")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":{"code":"INVALID_REQUEST","message":"bad request"}}`, w.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	tests := []struct {
		name       string
		input      string
		allowEmpty bool
		want       body
		wantErr    bool
	}{
		{name: "valid", input: `{"role":"user","content":"hi"}`, want: body{"user", "hi"}},
		{name: "unknown field", input: `{"role":"user","extra":1}`, wantErr: true},
		{name: "trailing data", input: `{"role":"user"} {}`, wantErr: true},
		{name: "malformed", input: `{"role":`, wantErr: true},
		{name: "empty not allowed", input: "", wantErr: true},
		{name: "empty allowed", input: "", allowEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var got body
			err := DecodeJSON(req, &got, tt.allowEmpty)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorResponse_RoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	SendError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "session not found", resp.Error.Message)
}
