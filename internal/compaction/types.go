package compaction

import (
	"fmt"
	"strings"
	"time"
)

// Role is the author of a chat turn. Only User and Assistant exist.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleAssistant
)

// String returns the lowercase wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole parses a wire role name.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Message is one entry of the input log.
type Message struct {
	Role      Role      `json:"role" yaml:"role"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp,omitempty"`
}

// Cycle is one user turn together with the assistant reply it received.
// Index is 1-based and gap-free over the emitted sequence.
type Cycle struct {
	Index         int       `json:"index"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Timestamp     time.Time `json:"timestamp"`
	IsVerbatim    bool      `json:"is_verbatim"`
}

// Text renders the cycle the same way for sizing and for the final context.
func (c Cycle) Text() string {
	return "User: " + c.UserText + "\nAssistant: " + c.AssistantText
}

// Layer is the compressed text of a contiguous range of older cycles.
type Layer struct {
	CycleRangeStart    int     `json:"cycle_range_start"`
	CycleRangeEnd      int     `json:"cycle_range_end"`
	Depth              int     `json:"depth"`
	CompressionRatio   float64 `json:"compression_ratio"`
	OriginalCycleCount int     `json:"original_cycle_count"`
	SummaryText        string  `json:"summary_text"`

	// Merged is set on layers produced by the overflow merger.
	Merged bool `json:"merged,omitempty"`
	// Fallback records why SummaryText is a truncation, if it is one.
	Fallback FallbackKind `json:"fallback,omitempty"`
}

// CompactionResult is the bounded representation of a log.
type CompactionResult struct {
	VerbatimCycles  []Cycle `json:"verbatim_cycles"`
	Layers          []Layer `json:"layers"` // oldest first
	EstimatedTokens int     `json:"estimated_tokens"`
}

// Stats summarizes a compaction for observability and tests.
type Stats struct {
	TotalCycles     int `json:"total_cycles"`
	VerbatimCount   int `json:"verbatim_count"`
	CompressedCount int `json:"compressed_count"`
	LayerCount      int `json:"layer_count"`
	EstimatedTokens int `json:"estimated_tokens"`
	FallbackCount   int `json:"fallback_count"`
	MergeCount      int `json:"merge_count"`
	DroppedTurns    int `json:"dropped_turns"`
}

// renderCycles joins cycles oldest to newest, one blank line apart.
func renderCycles(cycles []Cycle) string {
	if len(cycles) == 0 {
		return ""
	}
	parts := make([]string, len(cycles))
	for i, c := range cycles {
		parts[i] = c.Text()
	}
	return strings.Join(parts, "\n\n")
}
