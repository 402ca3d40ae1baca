package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"chitieu/internal/auth"
	"chitieu/internal/cli"
	"chitieu/internal/config"
	apphttp "chitieu/internal/http"
	"chitieu/internal/log"
	"chitieu/internal/middleware/ratelimit"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(logger *log.Logger, cfg *config.Config) error {
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	res := cli.InitBackend(ctx, logger, cfg, false)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, res.Service, apphttp.Options{
		Logger:   logger,
		Sessions: auth.NewManager(cfg.SessionSecret, cfg.SessionTTL, false),
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Ready: res.Ready,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting chitieu server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	return nil
}
