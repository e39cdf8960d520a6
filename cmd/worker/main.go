package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/planward/planward/internal/app"
	"github.com/planward/planward/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting planward worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	container, err := app.New(ctx, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if err := container.SeedRules(ctx); err != nil {
		logger.Error("failed to seed rules", "error", err)
		os.Exit(1)
	}

	if addr := container.Config.WorkerHealthAddr; addr != "" {
		startHealthServer(ctx, addr, container, logger)
	}

	container.Runner.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down worker")

	container.Runner.Stop()
	logger.Info("worker stopped")
}

func startHealthServer(ctx context.Context, addr string, container *app.Container, logger *slog.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := container.Health.GetOverallHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		body, _ := health.ToJSON()
		_, _ = w.Write(body)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		health := container.Health.GetOverallHealth(checkCtx)
		w.Header().Set("Content-Type", "application/json")
		if health.Status != observability.HealthStatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		body, _ := health.ToJSON()
		_, _ = w.Write(body)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()
}
