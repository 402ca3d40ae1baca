package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"chitieu/internal/backend"
	"chitieu/internal/cli"
	"chitieu/internal/config"
	"chitieu/internal/log"
	"chitieu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration,
			log.FieldOperation, log.OpValidate)
		os.Exit(1)
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, cfg *config.Config) error {
	logger.Info("Starting chitieu-worker", log.FieldOperation, log.OpStartup, "audit_sink", cfg.AuditSink)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	res := cli.InitBackend(ctx, logger, cfg, true)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	mirror, err := backend.NewAuditMirror(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if mirror == nil {
		logger.Info("Audit mirror disabled")
	}

	audit := worker.NewAuditWorker(res.Audit, mirror, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := res.AMQP.ConsumeExpenseEvents(gctx, audit.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Periodic storage health check.
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := res.Ready(gctx); err != nil {
					logger.Warn("Audit store not reachable", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
	return nil
}
