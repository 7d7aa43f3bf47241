// Package compaction turns an unbounded chat log into a bounded context blob.
//
// Recent exchanges are kept verbatim, older ones are compressed in layers
// whose compression gets harsher with age, and layers are merged further
// while the estimated size is still over budget.
package compaction

import (
	"context"
	"errors"
	"fmt"
)

// Compaction errors.
var (
	// ErrInvalidConfig indicates a static configuration that cannot be used.
	// It is the only error NewEngine returns.
	ErrInvalidConfig = errors.New("compaction: invalid configuration")

	// ErrSummarizerTimeout indicates the summarizer did not answer in time.
	ErrSummarizerTimeout = errors.New("compaction: summarizer timed out")

	// ErrSummarizerProvider indicates the summarizer failed for any other reason.
	ErrSummarizerProvider = errors.New("compaction: summarizer provider error")

	// ErrEmptySummary indicates the summarizer returned no usable text.
	ErrEmptySummary = errors.New("compaction: summarizer returned empty text")

	// ErrNoSummarizer indicates the engine runs in truncation-only mode.
	ErrNoSummarizer = errors.New("compaction: summarizer not configured")
)

// timeoutError is implemented by errors that know whether they are timeouts
// (net.Error, provider.ProviderError).
type timeoutError interface {
	Timeout() bool
}

// ClassifySummarizerError maps any summarizer failure onto one of the two
// runtime kinds, ErrSummarizerTimeout or ErrSummarizerProvider. The original
// error stays reachable through errors.Unwrap chains.
func ClassifySummarizerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSummarizerTimeout) || errors.Is(err, ErrSummarizerProvider) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrSummarizerTimeout, err)
	}
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return fmt.Errorf("%w: %w", ErrSummarizerTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrSummarizerProvider, err)
}

// IsTimeout reports whether err was classified as a summarizer timeout.
func IsTimeout(err error) bool {
	return errors.Is(ClassifySummarizerError(err), ErrSummarizerTimeout)
}

// FallbackKind names why a layer holds truncated text instead of a summary.
type FallbackKind string

const (
	FallbackNone      FallbackKind = ""
	FallbackTimeout   FallbackKind = "timeout"
	FallbackProvider  FallbackKind = "provider"
	FallbackCanceled  FallbackKind = "canceled"
	FallbackOversized FallbackKind = "oversized"
	FallbackDisabled  FallbackKind = "disabled"
)

// fallbackKindOf picks the FallbackKind for a failed summarizer call.
func fallbackKindOf(err error) FallbackKind {
	switch {
	case errors.Is(err, ErrNoSummarizer):
		return FallbackDisabled
	case errors.Is(err, errOversized):
		return FallbackOversized
	case IsTimeout(err):
		return FallbackTimeout
	default:
		return FallbackProvider
	}
}

var errOversized = errors.New("summary larger than source")
