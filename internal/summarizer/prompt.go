// Package summarizer provides compaction.Summarizer implementations backed
// by language models.
package summarizer

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs the model how to compress a slice of chat history.
const SystemPrompt = `You compress older parts of a conversation between a user and a personal finance assistant so they can be carried forward as memory.

Keep:
- decisions the user made and preferences they stated
- names, amounts, currencies, dates and account or category labels
- commitments and open follow-ups on either side

Drop greetings, thanks, small talk and repetition. Do not invent facts. Write plain prose or terse bullet points in the third person ("The user ..."). Output only the summary.`

// UserPrompt wraps text with the length instruction for one summarizer call.
func UserPrompt(text string, targetTokens int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the conversation excerpt below in at most %d tokens (about %d words).\n\n",
		targetTokens, max(targetTokens*3/4, 1))
	sb.WriteString("<excerpt>\n")
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteString("\n</excerpt>")
	return sb.String()
}

// maxOutputTokens gives the model a little room above the target so a
// summary is not cut mid-sentence. The engine rejects inflated results.
func maxOutputTokens(targetTokens int) int {
	return max(targetTokens+targetTokens/4, minOutputTokens)
}

const minOutputTokens = 32
