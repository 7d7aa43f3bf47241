package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// LastRunKey is the KV key holding the time of the last finished refresh.
const LastRunKey = "refresh.last_run"

// StaleLister finds sessions whose snapshot lags behind their log and
// records refresher progress.
type StaleLister interface {
	StaleSessions(limit int) ([]string, error)
	KVSet(key, value string, ttl time.Duration) error
}

// Builder rebuilds one session's context.
type Builder interface {
	BuildContext(ctx context.Context, sessionID string) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, sessionID string) error

// BuildContext calls f.
func (f BuilderFunc) BuildContext(ctx context.Context, sessionID string) error {
	return f(ctx, sessionID)
}

// SnapshotRefresher periodically rebuilds contexts of stale sessions so
// reads find a warm snapshot.
type SnapshotRefresher struct {
	cron      *cron.Cron
	store     StaleLister
	builder   Builder
	schedule  string
	batchSize int
	log       zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	busy    sync.Mutex
}

// NewSnapshotRefresher validates schedule (standard five-field cron or a
// descriptor such as "@every 10m") and creates a stopped refresher.
func NewSnapshotRefresher(store StaleLister, builder Builder, schedule string, batchSize int, log zerolog.Logger) (*SnapshotRefresher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	log = log.With().Str("component", "refresher").Logger()

	return &SnapshotRefresher{
		cron:      cron.New(cron.WithLogger(cronLogger{log: log})),
		store:     store,
		builder:   builder,
		schedule:  schedule,
		batchSize: batchSize,
		log:       log,
	}, nil
}

// Start registers the job and starts the scheduler.
func (r *SnapshotRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("refresher already running")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(r.ctx) }); err != nil {
		r.cancel()
		return fmt.Errorf("schedule refresh: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.log.Info().Str("schedule", r.schedule).Msg("snapshot refresher started")
	return nil
}

// Stop cancels any run in progress and waits for it to return.
func (r *SnapshotRefresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	done := r.cron.Stop()
	r.mu.Unlock()

	<-done.Done()
	r.log.Info().Msg("snapshot refresher stopped")
}

// RunOnce rebuilds up to batchSize stale sessions and returns how many were
// rebuilt. Overlapping runs are skipped.
func (r *SnapshotRefresher) RunOnce(ctx context.Context) int {
	if !r.busy.TryLock() {
		r.log.Debug().Msg("previous refresh still running, skipping")
		return 0
	}
	defer r.busy.Unlock()

	ids, err := r.store.StaleSessions(r.batchSize)
	if err != nil {
		r.log.Error().Err(err).Msg("list stale sessions")
		return 0
	}

	built := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := r.builder.BuildContext(ctx, id); err != nil {
			r.log.Warn().Err(err).Str("session_id", id).Msg("refresh failed")
			continue
		}
		built++
	}

	if err := r.store.KVSet(LastRunKey, time.Now().UTC().Format(time.RFC3339), 0); err != nil {
		r.log.Warn().Err(err).Msg("record last refresh")
	}
	r.log.Debug().Int("stale", len(ids)).Int("rebuilt", built).Msg("refresh finished")
	return built
}

// cronLogger routes robfig/cron logs to zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
