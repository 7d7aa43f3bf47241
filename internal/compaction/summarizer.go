package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Summarizer compresses text to roughly targetTokens tokens. Implementations
// should keep decisions, stated preferences, names, amounts, dates and
// commitments, and drop greetings and repetition.
type Summarizer interface {
	Summarize(ctx context.Context, text string, targetTokens int) (string, error)
}

// SummarizerFunc adapts a plain function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, text string, targetTokens int) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, text string, targetTokens int) (string, error) {
	return f(ctx, text, targetTokens)
}

// Truncate keeps a head and a tail slice of text whose combined length is at
// most maxChars bytes, joined by an elision marker. Text that already fits is
// returned unchanged. Cuts never split a UTF-8 sequence.
func Truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	if maxChars <= 0 {
		return ""
	}

	headLen := maxChars / 2
	for headLen > 0 && !utf8.RuneStart(text[headLen]) {
		headLen--
	}
	tailStart := len(text) - (maxChars - maxChars/2)
	for tailStart < len(text) && !utf8.RuneStart(text[tailStart]) {
		tailStart++
	}

	omitted := tailStart - headLen
	var sb strings.Builder
	sb.Grow(maxChars + 40)
	sb.WriteString(text[:headLen])
	sb.WriteString(fmt.Sprintf("\n[... %d chars omitted ...]\n", omitted))
	sb.WriteString(text[tailStart:])
	return sb.String()
}

type summaryOutcome struct {
	text string
	err  error
}

// guardedSummarizer runs summarizer calls under a per-call timeout and turns
// every failure into a classified error. A summarizer that ignores its
// context is abandoned once the deadline passes.
type guardedSummarizer struct {
	inner   Summarizer
	timeout time.Duration
}

func (g guardedSummarizer) call(ctx context.Context, text string, targetTokens int) (string, error) {
	if g.inner == nil {
		return "", ErrNoSummarizer
	}
	if err := ctx.Err(); err != nil {
		return "", ClassifySummarizerError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan summaryOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- summaryOutcome{err: fmt.Errorf("%w: panic: %v", ErrSummarizerProvider, r)}
			}
		}()
		out, err := g.inner.Summarize(callCtx, text, targetTokens)
		done <- summaryOutcome{text: out, err: err}
	}()

	select {
	case out := <-done:
		return out.result()
	case <-callCtx.Done():
		// Prefer an answer that arrived together with the deadline.
		select {
		case out := <-done:
			return out.result()
		default:
		}
		return "", ClassifySummarizerError(callCtx.Err())
	}
}

func (o summaryOutcome) result() (string, error) {
	if o.err != nil {
		return "", ClassifySummarizerError(o.err)
	}
	summary := strings.TrimSpace(o.text)
	if summary == "" {
		return "", fmt.Errorf("%w: %w", ErrSummarizerProvider, ErrEmptySummary)
	}
	return summary, nil
}
