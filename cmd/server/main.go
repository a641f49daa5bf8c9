package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"benefits/internal/app"
	"benefits/internal/platform/config"
	"benefits/internal/platform/httpserver"
	"benefits/internal/platform/logger"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

// main runs the fraud-check worker, the stuck-claim monitor and the ops HTTP
// server until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, version)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close backends", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Server.Addr, httpserver.NewOpsRouter(log, a.Registry, a.HealthChecks()...))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.Server.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.Queue != nil {
		g.Go(func() error {
			return a.Worker.Run(gctx, a.Queue)
		})
	} else {
		log.Info("asynchronous fraud check disabled; claims are scored at intake")
	}

	if err := a.Monitor.Start(gctx, cfg.Worker.MonitorSchedule); err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("start stuck-claim monitor: %w", err)
	}
	defer a.Monitor.Stop()

	return g.Wait()
}
