package compaction

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultMaxTokenBudget       = 3000
	DefaultVerbatimTailSize     = 4
	DefaultLayerGroupSize       = 3
	DefaultBaseCompressionRatio = 0.25
	DefaultMergeRatio           = 0.5
	DefaultCharsPerToken        = 4
	DefaultSummarizerTimeout    = 20 * time.Second
)

// Config holds the compaction engine configuration. Every field is explicit;
// the engine never fills in zero values on its own.
type Config struct {
	// MaxTokenBudget is the soft upper bound on the estimated context size.
	MaxTokenBudget int `mapstructure:"max_token_budget" yaml:"max_token_budget" json:"max_token_budget"`

	// VerbatimTailSize is the number of most recent cycles kept unmodified.
	VerbatimTailSize int `mapstructure:"verbatim_tail_size" yaml:"verbatim_tail_size" json:"verbatim_tail_size"`

	// LayerGroupSize is the number of cycles compressed into one layer.
	LayerGroupSize int `mapstructure:"layer_group_size" yaml:"layer_group_size" json:"layer_group_size"`

	// BaseCompressionRatio is raised to the layer depth to get its target ratio.
	BaseCompressionRatio float64 `mapstructure:"base_compression_ratio" yaml:"base_compression_ratio" json:"base_compression_ratio"`

	// MergeRatio is the target ratio when two layers are fused on overflow.
	MergeRatio float64 `mapstructure:"merge_ratio" yaml:"merge_ratio" json:"merge_ratio"`

	// CharsPerToken drives the token estimate and the truncation fallback.
	CharsPerToken int `mapstructure:"chars_per_token" yaml:"chars_per_token" json:"chars_per_token"`

	// SummarizerTimeout bounds every single summarizer call.
	SummarizerTimeout time.Duration `mapstructure:"summarizer_timeout" yaml:"summarizer_timeout" json:"summarizer_timeout"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() Config {
	return Config{
		MaxTokenBudget:       DefaultMaxTokenBudget,
		VerbatimTailSize:     DefaultVerbatimTailSize,
		LayerGroupSize:       DefaultLayerGroupSize,
		BaseCompressionRatio: DefaultBaseCompressionRatio,
		MergeRatio:           DefaultMergeRatio,
		CharsPerToken:        DefaultCharsPerToken,
		SummarizerTimeout:    DefaultSummarizerTimeout,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c Config) Validate() error {
	if c.MaxTokenBudget <= 0 {
		return fmt.Errorf("%w: max_token_budget must be positive, got %d", ErrInvalidConfig, c.MaxTokenBudget)
	}
	if c.VerbatimTailSize < 0 {
		return fmt.Errorf("%w: verbatim_tail_size must be non-negative, got %d", ErrInvalidConfig, c.VerbatimTailSize)
	}
	if c.LayerGroupSize <= 0 {
		return fmt.Errorf("%w: layer_group_size must be positive, got %d", ErrInvalidConfig, c.LayerGroupSize)
	}
	if c.BaseCompressionRatio <= 0 || c.BaseCompressionRatio > 1 {
		return fmt.Errorf("%w: base_compression_ratio must be in (0, 1], got %g", ErrInvalidConfig, c.BaseCompressionRatio)
	}
	if c.MergeRatio <= 0 || c.MergeRatio > 1 {
		return fmt.Errorf("%w: merge_ratio must be in (0, 1], got %g", ErrInvalidConfig, c.MergeRatio)
	}
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("%w: chars_per_token must be positive, got %d", ErrInvalidConfig, c.CharsPerToken)
	}
	if c.SummarizerTimeout <= 0 {
		return fmt.Errorf("%w: summarizer_timeout must be positive, got %s", ErrInvalidConfig, c.SummarizerTimeout)
	}
	return nil
}
