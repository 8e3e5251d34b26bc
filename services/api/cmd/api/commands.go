package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"surfsense/pkg/store"
	"surfsense/services/api/internal/config"
	"surfsense/services/api/internal/podcast"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.FileConfig) error {
	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	if cfg.Podcast.StalePolicy == config.StalePolicyFail {
		if _, err := c.podcasts.SweepStale(ctx, cfg.StaleAfter()); err != nil {
			slog.Error("stale podcast sweep failed", "err", err)
		}
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	c.podcasts.Wait()
	return nil
}

func newMigrateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()
			slog.Info("migrations applied")
			return nil
		},
	}
}

func newSweepCommand(load configLoader) *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "sweep-podcasts",
		Short: "Mark podcasts stuck in processing as failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if staleAfter <= 0 {
				staleAfter = cfg.StaleAfter()
			}
			st, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := podcast.NewService(st, nil, nil).SweepStale(cmd.Context(), staleAfter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d podcast(s) failed\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "Override podcast.staleAfter")
	return cmd
}
