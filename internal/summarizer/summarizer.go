package summarizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"finchat/internal/compaction"
	"finchat/internal/provider/ollama"
)

// ErrInvalidConfig reports an unusable summarizer configuration.
var ErrInvalidConfig = errors.New("summarizer: invalid configuration")

// Kinds of summarizer backends.
const (
	KindOllama    = "ollama"
	KindAnthropic = "anthropic"
	KindTruncate  = "truncate"
)

// Config selects and configures the summarizer backend.
type Config struct {
	Kind        string          `mapstructure:"kind" yaml:"kind"`
	Temperature float64         `mapstructure:"temperature" yaml:"temperature"`
	Ollama      ollama.Config   `mapstructure:"ollama" yaml:"ollama"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
}

// New builds the configured summarizer. KindTruncate returns a nil
// Summarizer, which puts the engine in truncation-only mode.
func New(cfg Config, log zerolog.Logger) (compaction.Summarizer, error) {
	log = log.With().Str("component", "summarizer").Logger()

	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindOllama:
		p := ollama.New(cfg.Ollama, log)
		return NewProviderSummarizer(p, cfg.Ollama.Model, cfg.Temperature, log), nil
	case KindAnthropic:
		s, err := NewAnthropicSummarizer(cfg.Anthropic, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindTruncate, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, cfg.Kind)
	}
}
