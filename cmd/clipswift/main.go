// Command clipswift is the editing surface: it owns the snippet list, drives
// the upgrade flow and, with `serve`, keeps observers in sync.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/clipswift/internal/config"
	"github.com/example/clipswift/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	debug      bool

	cfg    config.Config
	logger *zap.Logger
	env    *surface
)

var rootCmd = &cobra.Command{
	Use:   "clipswift",
	Short: "ClipSwift - text snippets that expand as you type",
	Long: `ClipSwift keeps a list of snippets, each with a trigger word. Typing a
trigger as the last word of a text expands it into the snippet content.

The free plan keeps the two most recently created snippets active. Premium
unlocks every snippet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if debug {
			cfg.Debug = true
		}

		logger, err = logging.New("clipswift", cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		env, err = openSurface(cmd.Context(), cfg, logger)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if env != nil {
			env.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (or set "+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(addCmd, editCmd, rmCmd, lsCmd, expandCmd)
	rootCmd.AddCommand(themeCmd, generateCmd)
	rootCmd.AddCommand(upgradeCmd, launchCmd, downgradeCmd, statusCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
