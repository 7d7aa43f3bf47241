package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"finchat/internal/config"
	"finchat/internal/storage"
)

// CLIContext carries state shared by all subcommands of one invocation.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
	Verbose    bool
	Quiet      bool

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log zerolog.Logger, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Verbose:    verbose,
		Quiet:      quiet,
	}
}

// GetStorage opens the configured database on first use.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.Config.Storage.Path)
	})
	return c.storage, c.storageErr
}

// Close releases resources opened through the context.
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}
