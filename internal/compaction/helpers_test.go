package compaction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSummarizer answers with exactly targetTokens tokens of filler and
// records every call.
type fakeSummarizer struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(ctx context.Context, text string, targetTokens int) (string, error)
}

type fakeCall struct {
	text         string
	targetTokens int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{text: text, targetTokens: targetTokens})
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(ctx, text, targetTokens)
	}
	return strings.Repeat("s", targetTokens*DefaultCharsPerToken), nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// conversation builds n complete cycles, user turn first.
func conversation(n int) []Message {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	msgs := make([]Message, 0, 2*n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs,
			Message{Role: RoleUser, Text: fmt.Sprintf("How much did I spend on groceries in week %d?", i), Timestamp: base.Add(time.Duration(i) * time.Hour)},
			Message{Role: RoleAssistant, Text: fmt.Sprintf("You spent $%d.50 on groceries in week %d.", 40+i, i), Timestamp: base.Add(time.Duration(i)*time.Hour + time.Minute)},
		)
	}
	return msgs
}

// hugeBudget returns the default config with merging effectively disabled.
func hugeBudget() Config {
	cfg := DefaultConfig()
	cfg.MaxTokenBudget = 1_000_000
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, s Summarizer) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, s)
	require.NoError(t, err)
	return e
}
