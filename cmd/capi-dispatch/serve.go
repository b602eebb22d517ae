package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relayloop/capi-dispatch/internal/handlers"
	"github.com/relayloop/capi-dispatch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP trigger service",
	Long:  "Serve the dispatch trigger, health and metrics endpoints over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		p, err := buildPipeline(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize pipeline: %w", err)
		}
		defer p.Close()

		handler := handlers.New(p.dispatcher, p.source, p.sender, p.ledger, cfg.Meta.ActionSource, log)
		router := server.NewRouter(handler, cfg.Debug.Enabled)

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("capi-dispatch listening",
				slog.Int("port", cfg.Server.Port),
				slog.Bool("debug_endpoints", cfg.Debug.Enabled),
			)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-quit:
		}

		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}

		slog.Info("server stopped gracefully")
		return nil
	},
}
