package compaction

import (
	"context"
	"math"

	"github.com/rs/zerolog"
)

// tally accumulates per-run counters shared by the compactor and the merger.
type tally struct {
	fallbacks int
	merges    int
}

// TieredCompactor splits cycles into a verbatim tail and depth-ordered
// compressed layers.
type TieredCompactor struct {
	config     Config
	estimator  TokenEstimator
	summarizer guardedSummarizer
	log        zerolog.Logger
}

// NewTieredCompactor creates a TieredCompactor. The config must be valid.
func NewTieredCompactor(config Config, summarizer Summarizer, log zerolog.Logger) *TieredCompactor {
	return &TieredCompactor{
		config:     config,
		estimator:  NewTokenEstimator(config.CharsPerToken),
		summarizer: guardedSummarizer{inner: summarizer, timeout: config.SummarizerTimeout},
		log:        log,
	}
}

// group is a contiguous slice of head cycles with its assigned depth.
type group struct {
	cycles []Cycle
	depth  int
}

// Split returns the verbatim tail and the older head, both in chronological
// order. Tail cycles are marked verbatim on the returned copies.
func (c *TieredCompactor) Split(cycles []Cycle) (head, tail []Cycle) {
	n := min(len(cycles), c.config.VerbatimTailSize)
	cut := len(cycles) - n

	head = cycles[:cut:cut]
	tail = make([]Cycle, n)
	copy(tail, cycles[cut:])
	for i := range tail {
		tail[i].IsVerbatim = true
	}
	return head, tail
}

// partition groups head cycles oldest first. The most recent group may be
// short. Depth is 1 for the group next to the tail and grows with age.
func (c *TieredCompactor) partition(head []Cycle) []group {
	size := c.config.LayerGroupSize
	count := (len(head) + size - 1) / size

	groups := make([]group, 0, count)
	for i := 0; i < count; i++ {
		end := min((i+1)*size, len(head))
		groups = append(groups, group{
			cycles: head[i*size : end],
			depth:  count - i,
		})
	}
	return groups
}

// TargetRatio returns BaseCompressionRatio^depth.
func (c *TieredCompactor) TargetRatio(depth int) float64 {
	return math.Pow(c.config.BaseCompressionRatio, float64(depth))
}

// targetTokens returns ceil(tokens * ratio), never below one.
func targetTokens(tokens int, ratio float64) int {
	return max(int(math.Ceil(float64(tokens)*ratio)), 1)
}

// Compact produces the verbatim tail and one layer per head group, oldest
// first. It never fails: a group whose summary cannot be obtained is
// truncated instead. Once ctx is done, remaining groups are truncated
// without calling the summarizer.
func (c *TieredCompactor) Compact(ctx context.Context, cycles []Cycle) (verbatim []Cycle, layers []Layer) {
	return c.compact(ctx, cycles, &tally{})
}

func (c *TieredCompactor) compact(ctx context.Context, cycles []Cycle, t *tally) ([]Cycle, []Layer) {
	head, tail := c.Split(cycles)
	if len(head) == 0 {
		return tail, nil
	}

	groups := c.partition(head)
	layers := make([]Layer, 0, len(groups))
	for _, g := range groups {
		layers = append(layers, c.compressGroup(ctx, g, t))
	}
	return tail, layers
}

func (c *TieredCompactor) compressGroup(ctx context.Context, g group, t *tally) Layer {
	text := renderCycles(g.cycles)
	ratio := c.TargetRatio(g.depth)
	sourceTokens := c.estimator.Estimate(text)
	target := targetTokens(sourceTokens, ratio)

	layer := Layer{
		CycleRangeStart:    g.cycles[0].Index,
		CycleRangeEnd:      g.cycles[len(g.cycles)-1].Index,
		Depth:              g.depth,
		CompressionRatio:   ratio,
		OriginalCycleCount: len(g.cycles),
	}

	summary, err := c.summarizer.call(ctx, text, target)
	if err == nil && c.estimator.Estimate(summary) > sourceTokens {
		err = errOversized
	}
	if err != nil {
		layer.Fallback = fallbackKindOf(err)
		if ctx.Err() != nil {
			layer.Fallback = FallbackCanceled
		}
		layer.SummaryText = Truncate(text, c.estimator.CharBudget(target))
		t.fallbacks++
		logFallback(c.log, err, layer).Int("target_tokens", target).
			Msg("layer summary unavailable, using truncation")
		return layer
	}

	layer.SummaryText = summary
	return layer
}

// logFallback starts a log event for a truncated layer. Truncation-only mode
// is expected and logs at debug level.
func logFallback(log zerolog.Logger, err error, layer Layer) *zerolog.Event {
	ev := log.Warn()
	if layer.Fallback == FallbackDisabled {
		ev = log.Debug()
	}
	return ev.Err(err).
		Str("kind", string(layer.Fallback)).
		Int("range_start", layer.CycleRangeStart).
		Int("range_end", layer.CycleRangeEnd).
		Int("depth", layer.Depth)
}
