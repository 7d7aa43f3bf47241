package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"finchat/internal/provider"
)

const anthropicName = "anthropic"

// AnthropicConfig configures the Anthropic Messages API summarizer.
type AnthropicConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultAnthropicModel is used when AnthropicConfig.Model is empty.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicSummarizer summarizes with the Anthropic Messages API.
type AnthropicSummarizer struct {
	client anthropic.Client
	model  string
	log    zerolog.Logger
}

// NewAnthropicSummarizer creates an AnthropicSummarizer. Retries are left to
// the SDK and default to none, since the engine already has a fallback.
func NewAnthropicSummarizer(cfg AnthropicConfig, log zerolog.Logger) (*AnthropicSummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicSummarizer{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		log:    log,
	}, nil
}

// Summarize implements compaction.Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(maxOutputTokens(targetTokens)),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(text, targetTokens))),
		},
	})
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	s.log.Debug().
		Str("model", string(msg.Model)).
		Int("target_tokens", targetTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Str("stop_reason", string(msg.StopReason)).
		Msg("summary received")
	return sb.String(), nil
}

// classifyAnthropicError maps SDK errors onto provider.ProviderError so the
// engine can tell timeouts apart.
func classifyAnthropicError(err error) error {
	pe := &provider.ProviderError{Provider: anthropicName, Message: err.Error(), Err: err}

	var apiErr *anthropic.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Code = provider.ErrCodeTimeout
		pe.Retryable = true
	case errors.Is(err, context.Canceled):
		pe.Code = provider.ErrCodeNetworkError
	case errors.As(err, &apiErr):
		pe.Code, pe.Retryable = codeForStatus(apiErr.StatusCode)
	default:
		pe.Code = provider.ErrCodeNetworkError
		pe.Retryable = true
	}
	return pe
}

func codeForStatus(status int) (provider.ErrorCode, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.ErrCodeAuthFailed, false
	case status == http.StatusNotFound:
		return provider.ErrCodeModelNotFound, false
	case status == http.StatusTooManyRequests:
		return provider.ErrCodeRateLimited, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return provider.ErrCodeTimeout, true
	case status == http.StatusBadRequest:
		return provider.ErrCodeInvalidRequest, false
	case status >= 500:
		return provider.ErrCodeServiceUnavailable, true
	default:
		return provider.ErrCodeUnknown, false
	}
}
