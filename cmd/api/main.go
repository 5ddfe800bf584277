package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/rapport/backend/internal/app"
	"github.com/zhouzirui/rapport/backend/internal/config"
	"github.com/zhouzirui/rapport/backend/internal/handler"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		logrus.Fatalf("failed to configure logging: %v", err)
	}
	if envErr != nil {
		logger.WithError(envErr).Warn("failed to load .env file, continuing with system environment variables only")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, logger, reg, app.ArkChatModel)
	if err != nil {
		logger.WithError(err).Fatal("failed to build engine")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("failed to close profile store")
		}
	}()

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}

	router := handler.NewRouter(handler.Deps{
		Engine:      a.Engine,
		Personas:    a.Personas,
		Gatherer:    reg,
		RateLimiter: limiter,
		Logger:      logger,
	})

	health := a.Engine.Health()
	logger.WithFields(logrus.Fields{
		"addr":       cfg.Server.Addr,
		"backend":    health.Backend,
		"ai_enabled": health.AIEnabled,
	}).Info("rapport backend starting")

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Error("server error")
		stop()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
