package compaction

import (
	"fmt"
	"strconv"
	"strings"
)

// Section headers of the formatted context.
const (
	CompressedHistoryHeader  = "## Compressed history"
	RecentConversationHeader = "## Recent conversation"
)

// ContextFormatter serializes a CompactionResult into prompt-ready text.
type ContextFormatter struct{}

// Format renders layers oldest to newest, then the verbatim cycles oldest to
// newest. Empty sections are omitted; an empty result yields "".
func (ContextFormatter) Format(result CompactionResult, totalCycles int) (string, Stats) {
	stats := Stats{
		TotalCycles:     totalCycles,
		VerbatimCount:   len(result.VerbatimCycles),
		LayerCount:      len(result.Layers),
		EstimatedTokens: result.EstimatedTokens,
	}
	for _, l := range result.Layers {
		stats.CompressedCount += l.OriginalCycleCount
	}

	var sections []string
	if len(result.Layers) > 0 {
		blocks := make([]string, 0, len(result.Layers))
		for _, l := range result.Layers {
			blocks = append(blocks, layerHeader(l)+"\n"+l.SummaryText)
		}
		sections = append(sections, CompressedHistoryHeader+"\n"+strings.Join(blocks, "\n\n"))
	}
	if len(result.VerbatimCycles) > 0 {
		sections = append(sections, RecentConversationHeader+"\n"+renderCycles(result.VerbatimCycles))
	}
	return strings.Join(sections, "\n\n"), stats
}

func layerHeader(l Layer) string {
	header := fmt.Sprintf("[Cycles %d-%d | depth %d | ratio %s",
		l.CycleRangeStart, l.CycleRangeEnd, l.Depth,
		strconv.FormatFloat(l.CompressionRatio, 'g', 4, 64))
	if l.Merged {
		header += " | merged"
	}
	return header + "]"
}
