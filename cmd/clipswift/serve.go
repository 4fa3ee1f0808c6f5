package main

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/example/clipswift/internal/coordinator"
	"github.com/example/clipswift/internal/domain/checkout"
	"github.com/example/clipswift/internal/infrastructure/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator that keeps observers in sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.Named("coordinator")

		coord := coordinator.New(env.lib, env.gateway, log)
		env.broadcaster.AddSource(coord.Hub())

		lc := env.lifecycle(cfg.Checkout, coord)
		lc.OnOutcome(func(o checkout.Outcome) {
			log.Info(o.Message(), zap.String("state", string(o.State)), zap.String("session_id", o.SessionID))
		})
		lc.Launch(ctx)

		if w, ok := env.state.(store.Watcher); ok {
			go followStore(ctx, w, log)
		}

		srv := &http.Server{
			Addr:              cfg.Coordinator,
			Handler:           coord.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("listening", zap.String("addr", cfg.Coordinator))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		coord.Hub().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// followStore reloads the library when another process edits the snippet
// state and pushes the result to every observer.
func followStore(ctx context.Context, w store.Watcher, log *zap.Logger) {
	err := w.Watch(ctx, func(keys []string) {
		if !slices.Contains(keys, store.KeySnippets) && !slices.Contains(keys, store.KeyTier) {
			return
		}
		if err := env.lib.Load(ctx); err != nil {
			log.Warn("reload after external change", zap.Error(err))
			return
		}
		env.broadcaster.Broadcast(ctx, env.lib.Snapshot())
	})
	if err != nil && ctx.Err() == nil {
		log.Warn("state watch stopped", zap.Error(err))
	}
}
