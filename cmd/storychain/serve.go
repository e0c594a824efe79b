package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storychain/internal/app"
	"storychain/internal/config"
	httpTransport "storychain/internal/transport/http"
)

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ApplyEnv(config.NewViper(), cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cfg.RegisterFlags(cmd.Flags())

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Info("starting storychain server",
		"version", releaseVersion,
		"env", cfg.Server.Env,
		"addr", cfg.GetAddr(),
	)

	// Create room hub
	hub := app.NewHub(logger,
		app.WithLimits(cfg.Limits()),
		app.WithSessionTimeout(cfg.Game.SessionTimeout),
	)
	defer hub.Close()

	server := httpTransport.NewServer(cfg, hub, logger, releaseVersion)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
