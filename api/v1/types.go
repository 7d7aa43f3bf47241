package v1

import (
	"encoding/json"
	"time"

	"finchat/internal/compaction"
	"finchat/internal/storage"
)

// ComponentHealth represents the health of one dependency.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the detailed health response.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// SessionResponse is a session with its message count.
type SessionResponse struct {
	ID           string          `json:"id"`
	Title        string          `json:"title,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	MessageCount int             `json:"message_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SessionsListResponse represents the response for listing sessions.
type SessionsListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// CreateSessionRequest represents a request to create a session. All fields
// are optional.
type CreateSessionRequest struct {
	ID       string          `json:"id,omitempty"`
	Title    string          `json:"title,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// AppendMessageRequest appends one turn to a session.
type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageResponse is one stored message.
type MessageResponse struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	Role      compaction.Role `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// MessagesResponse lists messages oldest first.
type MessagesResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []MessageResponse `json:"messages"`
}

// ContextResponse is a compacted context with its stats.
type ContextResponse struct {
	SnapshotID   string           `json:"snapshot_id"`
	SessionID    string           `json:"session_id"`
	Context      string           `json:"context"`
	Stats        compaction.Stats `json:"stats"`
	MessageCount int              `json:"message_count"`
	CreatedAt    time.Time        `json:"created_at"`
}

// SuccessResponse acknowledges an operation without a payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func toMessageResponse(m *storage.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Seq:       m.Seq,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func toContextResponse(s *storage.ContextSnapshot) ContextResponse {
	return ContextResponse{
		SnapshotID:   s.ID,
		SessionID:    s.SessionID,
		Context:      s.Context,
		Stats:        s.Stats,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
	}
}
