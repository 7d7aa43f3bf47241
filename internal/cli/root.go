// Package cli implements the finchat command line.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"finchat/internal/config"
	"finchat/pkg/logger"
)

// GlobalFlags are flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

type contextKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var flags GlobalFlags

	rootCmd := &cobra.Command{
		Use:   "finchat",
		Short: "finchat - conversational memory for finance assistants",
		Long: `finchat stores chat sessions and turns their ever-growing logs into
bounded context blobs: recent exchanges verbatim, older ones summarized
in progressively denser layers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := flags.ConfigPath
			if configPath == "" {
				var err error
				if configPath, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logCfg := cfg.Log
			if flags.Verbose {
				logCfg.Level = "debug"
			}
			if flags.Quiet {
				logCfg.Level = "error"
			}
			if err := logger.Init(logCfg); err != nil {
				return err
			}

			cliCtx := NewCLIContext(cfg, configPath, logger.Get(), flags.Verbose, flags.Quiet)
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			if cliCtx := GetCLIContext(cmd); cliCtx != nil {
				errs = append(errs, cliCtx.Close())
			}
			errs = append(errs, logger.Close())
			return errors.Join(errs...)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet mode")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCompactCmd())
	rootCmd.AddCommand(NewSessionCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}

// GetCLIContext returns the context set up by the root command, or nil.
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, _ := ctx.Value(contextKey{}).(*CLIContext)
	return cliCtx
}

func mustCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	if c := GetCLIContext(cmd); c != nil {
		return c, nil
	}
	return nil, errors.New("CLI context not initialized")
}
