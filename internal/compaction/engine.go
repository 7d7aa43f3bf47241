package compaction

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Result is the output of one engine run.
type Result struct {
	Context    string           `json:"context"`
	Stats      Stats            `json:"stats"`
	Compaction CompactionResult `json:"compaction"`
}

// Engine runs the full pipeline: cycle assembly, tiered compaction, overflow
// merging and formatting. It holds no per-session state and is safe for
// concurrent use.
type Engine struct {
	config    Config
	compactor *TieredCompactor
	merger    *OverflowMerger
	formatter ContextFormatter
	log       zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for fallback and overflow events.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine validates config and creates an Engine. A nil summarizer puts
// the engine in truncation-only mode.
func NewEngine(config Config, summarizer Summarizer, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: config,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.compactor = NewTieredCompactor(config, summarizer, e.log)
	e.merger = NewOverflowMerger(config, summarizer, e.log)
	return e, nil
}

// MustNewEngine is like NewEngine but panics on an invalid config.
func MustNewEngine(config Config, summarizer Summarizer, opts ...Option) *Engine {
	e, err := NewEngine(config, summarizer, opts...)
	if err != nil {
		panic(fmt.Sprintf("compaction: %v", err))
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Compact converts a message log into a bounded context. It never fails and
// never blocks past ctx plus one summarizer timeout: summarizer errors,
// timeouts and cancellation degrade to truncated layers. messages is not
// modified.
func (e *Engine) Compact(ctx context.Context, messages []Message) Result {
	cycles, dropped := AssembleCycles(messages)
	if dropped > 0 {
		e.log.Debug().Int("dropped_turns", dropped).Msg("unanswered user turns discarded")
	}

	t := &tally{}
	tail, layers := e.compactor.compact(ctx, cycles, t)
	layers, total := e.merger.merge(ctx, tail, layers, t)

	result := CompactionResult{
		VerbatimCycles:  tail,
		Layers:          layers,
		EstimatedTokens: total,
	}
	text, stats := e.formatter.Format(result, len(cycles))
	stats.FallbackCount = t.fallbacks
	stats.MergeCount = t.merges
	stats.DroppedTurns = dropped

	e.log.Debug().
		Int("total_cycles", stats.TotalCycles).
		Int("verbatim", stats.VerbatimCount).
		Int("compressed", stats.CompressedCount).
		Int("layers", stats.LayerCount).
		Int("estimated_tokens", stats.EstimatedTokens).
		Int("fallbacks", stats.FallbackCount).
		Int("merges", stats.MergeCount).
		Msg("context compacted")

	return Result{Context: text, Stats: stats, Compaction: result}
}
