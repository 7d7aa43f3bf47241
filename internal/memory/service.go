// Package memory builds and stores compacted conversation contexts for
// persisted chat sessions.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"finchat/internal/compaction"
	"finchat/internal/storage"
)

// Store is the persistence the service needs.
type Store interface {
	CompactionLog(sessionID string) ([]compaction.Message, error)
	SaveSnapshot(snap *storage.ContextSnapshot) error
	LatestSnapshot(sessionID string) (*storage.ContextSnapshot, error)
	PruneSnapshots(sessionID string, keep int) (int64, error)
}

// ContextService compacts session logs with an Engine and records the
// result as snapshots. Concurrent builds for one session share a single
// engine run.
type ContextService struct {
	store         Store
	engine        *compaction.Engine
	keepSnapshots int
	group         singleflight.Group
	log           zerolog.Logger
}

// NewContextService creates a ContextService. keepSnapshots bounds the
// snapshots retained per session; zero or less keeps all of them.
func NewContextService(store Store, engine *compaction.Engine, keepSnapshots int, log zerolog.Logger) *ContextService {
	return &ContextService{
		store:         store,
		engine:        engine,
		keepSnapshots: keepSnapshots,
		log:           log.With().Str("component", "context_service").Logger(),
	}
}

// BuildContext compacts the session's current log, stores the snapshot and
// returns it. It fails only when the log cannot be loaded or the snapshot
// cannot be saved; summarizer trouble degrades inside the engine.
func (s *ContextService) BuildContext(ctx context.Context, sessionID string) (*storage.ContextSnapshot, error) {
	ch := s.group.DoChan(sessionID, func() (any, error) {
		// Detached so one caller's cancellation does not fail the others.
		return s.build(context.WithoutCancel(ctx), sessionID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log.Debug().Str("session_id", sessionID).Msg("joined in-flight build")
		}
		return res.Val.(*storage.ContextSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ContextService) build(ctx context.Context, sessionID string) (*storage.ContextSnapshot, error) {
	start := time.Now()

	messages, err := s.store.CompactionLog(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	result := s.engine.Compact(ctx, messages)
	snap := &storage.ContextSnapshot{
		SessionID:    sessionID,
		Context:      result.Context,
		Stats:        result.Stats,
		MessageCount: len(messages),
	}
	if err := s.store.SaveSnapshot(snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if s.keepSnapshots > 0 {
		if _, err := s.store.PruneSnapshots(sessionID, s.keepSnapshots); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("prune snapshots failed")
		}
	}

	s.log.Info().
		Str("session_id", sessionID).
		Int("messages", len(messages)).
		Int("cycles", result.Stats.TotalCycles).
		Int("layers", result.Stats.LayerCount).
		Int("estimated_tokens", result.Stats.EstimatedTokens).
		Int("fallbacks", result.Stats.FallbackCount).
		Dur("took", time.Since(start)).
		Msg("context built")
	return snap, nil
}

// LatestSnapshot returns the newest stored snapshot, or storage.ErrNotFound.
func (s *ContextService) LatestSnapshot(sessionID string) (*storage.ContextSnapshot, error) {
	return s.store.LatestSnapshot(sessionID)
}
