// Package server wires configuration, storage, the compaction engine and the
// HTTP gateway into one runnable process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	v1 "finchat/api/v1"
	"finchat/internal/compaction"
	"finchat/internal/config"
	"finchat/internal/gateway"
	"finchat/internal/memory"
	"finchat/internal/storage"
	"finchat/internal/summarizer"
)

// Options configures a Server.
type Options struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Version string
}

// Server is a running finchat service.
type Server struct {
	cfg       *config.Config
	logger    zerolog.Logger
	db        *storage.DB
	contexts  *memory.ContextService
	refresher *memory.SnapshotRefresher
	gateway   *gateway.Server

	ctx       context.Context
	cancel    context.CancelFunc
	listener  net.Listener
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	errChan   chan error
}

// BuildEngine creates the compaction engine and its summarizer from cfg.
func BuildEngine(cfg *config.Config, log zerolog.Logger) (*compaction.Engine, error) {
	sum, err := summarizer.New(cfg.Summarizer, log)
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	engine, err := compaction.NewEngine(cfg.Compaction, sum,
		compaction.WithLogger(log.With().Str("component", "compaction").Logger()))
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// New opens the database and builds every component. Nothing listens until
// Start is called.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	cfg := opts.Config
	log := opts.Logger

	engine, err := BuildEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	contexts := memory.NewContextService(db, engine, cfg.Refresh.KeepSnapshots, log)

	var refresher *memory.SnapshotRefresher
	if cfg.Refresh.Enabled {
		build := memory.BuilderFunc(func(ctx context.Context, id string) error {
			_, err := contexts.BuildContext(ctx, id)
			return err
		})
		refresher, err = memory.NewSnapshotRefresher(db, build, cfg.Refresh.Schedule, cfg.Refresh.BatchSize, log)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	api := v1.NewRouter(v1.RouterDeps{
		DB:       db,
		Contexts: contexts,
		Version:  opts.Version,
		Logger:   log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		logger:    log,
		db:        db,
		contexts:  contexts,
		refresher: refresher,
		gateway:   gateway.NewServer(cfg.Server, api, db, opts.Version, log),
		ctx:       ctx,
		cancel:    cancel,
		errChan:   make(chan error, 1),
	}, nil
}

// Start binds the listen address, starts the refresher and serves in the
// background. Serve failures are reported on ErrorChan.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr(), err)
	}
	s.listener = ln

	if s.refresher != nil {
		if err := s.refresher.Start(s.ctx); err != nil {
			_ = ln.Close()
			return err
		}
	}

	go func() {
		if err := s.gateway.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("Server error")
			s.errChan <- err
		}
	}()

	s.running = true
	s.startedAt = time.Now()
	s.logger.Info().
		Str("address", "http://"+ln.Addr().String()).
		Str("summarizer", s.cfg.Summarizer.Kind).
		Int("budget", s.cfg.Compaction.MaxTokenBudget).
		Bool("refresh", s.refresher != nil).
		Msg("finchat server started")
	return nil
}

// ErrorChan returns the error channel for monitoring server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts down the gateway and the refresher and closes the database.
// It is safe to call on a server that was never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.cancel()

	var errs []error
	if wasRunning {
		s.logger.Info().Msg("Stopping server...")
		if err := s.gateway.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if s.refresher != nil {
			s.refresher.Stop()
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	s.logger.Info().Msg("Server stopped")
	return errors.Join(errs...)
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IsReady reports whether the gateway accepts requests.
func (s *Server) IsReady() bool {
	return s.IsRunning() && s.gateway.IsReady()
}

// StartedAt returns when Start succeeded.
func (s *Server) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// DB exposes the store, mainly for tests and one-shot commands.
func (s *Server) DB() *storage.DB {
	return s.db
}
