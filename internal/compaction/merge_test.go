package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLayers() []Layer {
	return []Layer{
		{CycleRangeStart: 1, CycleRangeEnd: 3, Depth: 3, CompressionRatio: 0.015625, OriginalCycleCount: 3, SummaryText: strings.Repeat("a", 400)},
		{CycleRangeStart: 4, CycleRangeEnd: 6, Depth: 2, CompressionRatio: 0.0625, OriginalCycleCount: 3, SummaryText: strings.Repeat("b", 400)},
		{CycleRangeStart: 7, CycleRangeEnd: 9, Depth: 1, CompressionRatio: 0.25, OriginalCycleCount: 3, SummaryText: strings.Repeat("c", 400)},
	}
}

func TestOverflowMerger_UnderBudget(t *testing.T) {
	fake := &fakeSummarizer{}
	m := NewOverflowMerger(hugeBudget(), fake, zerolog.Nop())

	layers := sampleLayers()
	out, total := m.Merge(context.Background(), nil, layers)

	assert.Equal(t, layers, out)
	assert.Equal(t, 300, total)
	assert.Zero(t, fake.callCount())
}

func TestOverflowMerger_MergesUntilSingleLayer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokenBudget = 1
	fake := &fakeSummarizer{}
	m := NewOverflowMerger(cfg, fake, zerolog.Nop())

	layers := sampleLayers()
	original := sampleLayers()
	tr := &tally{}
	out, total := m.merge(context.Background(), nil, layers, tr)

	require.Len(t, out, 1)
	assert.Equal(t, 2, tr.merges)
	assert.Equal(t, 2, fake.callCount())
	assert.Equal(t, original, layers, "input layers must not be modified")

	l := out[0]
	assert.Equal(t, 1, l.CycleRangeStart)
	assert.Equal(t, 9, l.CycleRangeEnd)
	assert.Equal(t, 1, l.Depth)
	assert.Equal(t, 9, l.OriginalCycleCount)
	assert.True(t, l.Merged)
	assert.InDelta(t, 0.015625*0.5*0.5, l.CompressionRatio, 1e-12)
	assert.Equal(t, FallbackNone, l.Fallback)
	assert.Equal(t, NewTokenEstimator(DefaultCharsPerToken).Estimate(l.SummaryText), total)
}

func TestOverflowMerger_OldestFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokenBudget = 220
	fake := &fakeSummarizer{}
	m := NewOverflowMerger(cfg, fake, zerolog.Nop())

	out, total := m.Merge(context.Background(), nil, sampleLayers())

	// 300 tokens; the oldest pair renders to 201 tokens and is summarized to 101.
	require.Len(t, out, 2)
	assert.Equal(t, 201, total)
	assert.Equal(t, 1, out[0].CycleRangeStart)
	assert.Equal(t, 6, out[0].CycleRangeEnd)
	assert.Equal(t, 7, out[1].CycleRangeStart)
	assert.False(t, out[1].Merged)

	require.Equal(t, 1, fake.callCount())
	assert.Equal(t, strings.Repeat("a", 400)+"\n\n"+strings.Repeat("b", 400), fake.calls[0].text)
	assert.Equal(t, 101, fake.calls[0].targetTokens)
}

func TestOverflowMerger_CountsTail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokenBudget = 300
	m := NewOverflowMerger(cfg, &fakeSummarizer{}, zerolog.Nop())

	tail := []Cycle{{Index: 10, UserText: "hi", AssistantText: "hello", IsVerbatim: true}}
	assert.Greater(t, m.Total(tail, sampleLayers()), 300)

	out, _ := m.Merge(context.Background(), tail, sampleLayers())
	assert.Len(t, out, 2)
}

func TestOverflowMerger_FallbackOnError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokenBudget = 1
	m := NewOverflowMerger(cfg, nil, zerolog.Nop())

	tr := &tally{}
	out, _ := m.merge(context.Background(), nil, sampleLayers()[:2], tr)
	require.Len(t, out, 1)
	assert.Equal(t, FallbackDisabled, out[0].Fallback)
	assert.Equal(t, 1, tr.fallbacks)
	assert.Less(t, len(out[0].SummaryText), 802)
	assert.Contains(t, out[0].SummaryText, "chars omitted")
}

func TestOverflowMerger_SingleLayerOverBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokenBudget = 1
	fake := &fakeSummarizer{}
	m := NewOverflowMerger(cfg, fake, zerolog.Nop())

	layers := sampleLayers()[:1]
	out, total := m.Merge(context.Background(), nil, layers)
	assert.Equal(t, layers, out)
	assert.Equal(t, 100, total)
	assert.Zero(t, fake.callCount())
}
