package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelworks/ise-enrich/internal/scheduler"
	"github.com/sentinelworks/ise-enrich/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the pipeline on an interval with an operational HTTP endpoint",
	PreRunE: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		sched := scheduler.NewScheduler(a.controller, scheduler.Config{
			Interval: cfg.Scheduler.Interval(),
		}, logger.Logger)

		if err := sched.Start(ctx); err != nil {
			return err
		}

		handler := server.NewHandler(a.controller, func() bool {
			// Ready once the first directory snapshot exists.
			return a.cache.Snapshot() != nil
		})

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      server.NewRouter(handler),
			ReadTimeout:  cfg.Server.ReadTimeout(),
			WriteTimeout: cfg.Server.WriteTimeout(),
			IdleTimeout:  cfg.Server.IdleTimeout(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("ise-enrich listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		case err := <-errCh:
			stop()
			return err
		}

		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", slog.String("error", err.Error()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
