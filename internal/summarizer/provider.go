package summarizer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"finchat/internal/provider"
)

// ProviderSummarizer summarizes through any provider.Provider.
type ProviderSummarizer struct {
	provider    provider.Provider
	model       string
	temperature float64
	log         zerolog.Logger
}

// NewProviderSummarizer creates a ProviderSummarizer. An empty model uses
// the provider's default.
func NewProviderSummarizer(p provider.Provider, model string, temperature float64, log zerolog.Logger) *ProviderSummarizer {
	return &ProviderSummarizer{
		provider:    p,
		model:       model,
		temperature: temperature,
		log:         log,
	}
}

// Summarize implements compaction.Summarizer.
func (s *ProviderSummarizer) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	resp, err := s.provider.Chat(ctx, provider.ChatRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: SystemPrompt},
			{Role: provider.RoleUser, Content: UserPrompt(text, targetTokens)},
		},
		Temperature: s.temperature,
		MaxTokens:   maxOutputTokens(targetTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%s summarize: %w", s.provider.Name(), err)
	}

	ev := s.log.Debug().Str("provider", s.provider.Name()).Int("target_tokens", targetTokens)
	if resp.Usage != nil {
		ev = ev.Int("completion_tokens", resp.Usage.CompletionTokens)
	}
	ev.Str("finish_reason", resp.FinishReason).Msg("summary received")
	return resp.Content, nil
}
