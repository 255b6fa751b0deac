package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workflowai/internal/app"
	"workflowai/internal/config"
	"workflowai/internal/db"
	"workflowai/internal/logger"
	"workflowai/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.New("info").Fatalw("config", "err", err)
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()
	if cfg.EphemeralKey {
		lg.Warnw("JWT_SECRET not set; using a random key, sessions end on restart")
	}

	shutdownTracing, err := telemetry.Init(ctx, app.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		lg.Fatalw("telemetry init failed", "err", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatalw("startup failed", "err", err)
	}
	defer a.Close()

	if err := db.SeedAdmin(ctx, a.Store, cfg.AdminEmail, cfg.AdminUsername, cfg.AdminPassword, lg); err != nil {
		lg.Fatalw("seed admin failed", "err", err)
	}

	if cfg.ReconcileSchedule != "" {
		stopSweep, err := a.Workflows.Schedule(cfg.ReconcileSchedule, time.Minute)
		if err != nil {
			lg.Fatalw("invalid RECONCILE_SCHEDULE", "spec", cfg.ReconcileSchedule, "err", err)
		}
		defer stopSweep()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Infow("listening", "addr", cfg.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatalw("http server failed", "err", err)
		}
	}()

	<-ctx.Done()
	lg.Infow("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warnw("http shutdown", "err", err)
	}
}
