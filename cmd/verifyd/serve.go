package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"verified-checkout/internal/database"
	"verified-checkout/internal/server"
	"verified-checkout/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the stale-payment sweeper",
		Long: `Start the HTTP API.

Routes:
  POST /create-payment-session
  POST /webhook
  GET  /payments/:txRef
  GET  /healthz

The sweeper re-verifies payments left pending past SWEEPER_OLDER_THAN
unless SWEEPER_ENABLED=false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func runServe(migrate bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := database.Migrate(ctx, a.db.DB()); err != nil {
			return err
		}
	}

	srv := server.NewServer(server.Deps{
		Sessions:       a.sessions,
		Reconciler:     a.reconciler,
		Auth:           webhook.NewAuthenticator(cfg.Webhook.Secret),
		Payments:       a.payments,
		Health:         a.db,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}).HTTPServer(cfg.HTTPAddr)

	if cfg.Sweeper.Enabled {
		go a.sweeper().Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
