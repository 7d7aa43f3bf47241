package compaction

import (
	"context"

	"github.com/rs/zerolog"
)

// OverflowMerger fuses the two oldest layers until the estimated total fits
// the budget or a single layer remains. The bound is soft: an oversized
// single layer is returned as is.
type OverflowMerger struct {
	config     Config
	estimator  TokenEstimator
	summarizer guardedSummarizer
	log        zerolog.Logger
}

// NewOverflowMerger creates an OverflowMerger. The config must be valid.
func NewOverflowMerger(config Config, summarizer Summarizer, log zerolog.Logger) *OverflowMerger {
	return &OverflowMerger{
		config:     config,
		estimator:  NewTokenEstimator(config.CharsPerToken),
		summarizer: guardedSummarizer{inner: summarizer, timeout: config.SummarizerTimeout},
		log:        log,
	}
}

// Total returns the estimated size of the tail plus every layer summary.
func (m *OverflowMerger) Total(tail []Cycle, layers []Layer) int {
	total := m.estimator.Estimate(renderCycles(tail))
	for _, l := range layers {
		total += m.estimator.Estimate(l.SummaryText)
	}
	return total
}

// Merge returns the merged layers, oldest first, and their estimated total
// including the tail. The input slice is not modified.
func (m *OverflowMerger) Merge(ctx context.Context, tail []Cycle, layers []Layer) ([]Layer, int) {
	return m.merge(ctx, tail, layers, &tally{})
}

func (m *OverflowMerger) merge(ctx context.Context, tail []Cycle, layers []Layer, t *tally) ([]Layer, int) {
	out := make([]Layer, len(layers))
	copy(out, layers)

	total := m.Total(tail, out)
	for total > m.config.MaxTokenBudget && len(out) > 1 {
		merged := m.mergePair(ctx, out[0], out[1], t)
		out = append([]Layer{merged}, out[2:]...)
		t.merges++
		total = m.Total(tail, out)
	}

	if total > m.config.MaxTokenBudget {
		m.log.Debug().
			Int("estimated_tokens", total).
			Int("budget", m.config.MaxTokenBudget).
			Int("layers", len(out)).
			Msg("budget still exceeded after merging")
	}
	return out, total
}

// mergePair fuses two adjacent layers, older first.
func (m *OverflowMerger) mergePair(ctx context.Context, older, newer Layer, t *tally) Layer {
	text := older.SummaryText + "\n\n" + newer.SummaryText
	sourceTokens := m.estimator.Estimate(text)
	target := targetTokens(sourceTokens, m.config.MergeRatio)

	layer := Layer{
		CycleRangeStart:    min(older.CycleRangeStart, newer.CycleRangeStart),
		CycleRangeEnd:      max(older.CycleRangeEnd, newer.CycleRangeEnd),
		Depth:              min(older.Depth, newer.Depth),
		CompressionRatio:   min(older.CompressionRatio, newer.CompressionRatio) * m.config.MergeRatio,
		OriginalCycleCount: older.OriginalCycleCount + newer.OriginalCycleCount,
		Merged:             true,
	}

	summary, err := m.summarizer.call(ctx, text, target)
	if err == nil && m.estimator.Estimate(summary) > sourceTokens {
		err = errOversized
	}
	if err != nil {
		layer.Fallback = fallbackKindOf(err)
		if ctx.Err() != nil {
			layer.Fallback = FallbackCanceled
		}
		layer.SummaryText = Truncate(text, m.estimator.CharBudget(target))
		t.fallbacks++
		logFallback(m.log, err, layer).Int("target_tokens", target).
			Msg("merge summary unavailable, using truncation")
		return layer
	}

	layer.SummaryText = summary
	return layer
}
