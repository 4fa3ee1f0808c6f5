// Command observer is a passive context: it keeps a read-only copy of the
// snippet state in sync and expands every line read from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/clipswift/internal/config"
	"github.com/example/clipswift/internal/infrastructure/kafka"
	"github.com/example/clipswift/internal/infrastructure/store"
	"github.com/example/clipswift/internal/logging"
	"github.com/example/clipswift/internal/propagation"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath     string
	coordinatorURL string
)

var rootCmd = &cobra.Command{
	Use:           "observer",
	Short:         "Expand stdin lines against the live snippet state",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New("observer", cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Sync()

		return runObserver(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML config file (or set "+config.EnvConfigPath+")")
	rootCmd.Flags().StringVar(&coordinatorURL, "coordinator", "", "Coordinator URL to subscribe to (default from config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runObserver(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	state, closeState, err := store.Open(ctx, cfg.State)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer closeState()

	name := "observer-" + uuid.NewString()
	obs := propagation.NewObserver(name, propagation.StoreLoader{Store: state}, logger)
	if err := obs.Reload(ctx); err != nil {
		logger.Warn("initial load failed", zap.Error(err))
	}

	if w, ok := state.(store.Watcher); ok {
		go func() {
			if err := obs.Follow(ctx, w); err != nil && ctx.Err() == nil {
				logger.Warn("state watch stopped", zap.Error(err))
			}
		}()
	}

	url := coordinatorURL
	if url == "" {
		url = "http://" + cfg.Coordinator + "/observers"
	}
	go func() {
		if err := propagation.Subscribe(ctx, url, obs); err != nil && ctx.Err() == nil {
			logger.Info("coordinator unavailable", zap.String("url", url), zap.Error(err))
		}
	}()

	if cfg.Kafka.Enabled() {
		// every observer needs every broadcast, so each gets its own group
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.SyncTopic, name, logger, kafka.FromLatest())
		defer consumer.Close()
		go func() {
			if err := consumer.Consume(ctx, obs.HandleKafka); err != nil && ctx.Err() == nil {
				logger.Warn("consumer stopped", zap.Error(err))
			}
		}()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if res, ok := obs.Expand(line); ok {
				fmt.Println(res.Text)
			} else {
				fmt.Println(line)
			}
		}
	}
}
