package backend

import (
	"context"
	"fmt"

	"chitieu/internal/amqp"
	"chitieu/internal/log"
	"chitieu/internal/services"
	"chitieu/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger}
}

// store is what both repositories implement.
type store interface {
	storage.Repository
	storage.AuditStore
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo  store
		ready = func(context.Context) error { return nil }
	)
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo, ready = sqliteRepo, sqliteRepo.Ping
	case MemoryBackend:
		repo = storage.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	client, err := f.connectAMQP(ctx, config)
	if err != nil {
		repo.Close()
		return nil, err
	}

	// A nil *amqp.Client must not become a non-nil interface.
	var publisher services.EventPublisher
	if client != nil {
		publisher = client
	}
	svc := services.NewExpenseService(repo, publisher, services.Options{
		Logger:    f.logger,
		CacheSize: config.CacheSize,
		CacheTTL:  config.CacheTTL,
	})

	f.logger.WithComponent(log.ComponentBackend).Info("Initialized backend",
		"type", config.Type,
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", client != nil)

	return &Result{
		Service: svc,
		Audit:   repo,
		AMQP:    client,
		Ready:   ready,
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) connectAMQP(ctx context.Context, config Config) (*amqp.Client, error) {
	if config.AMQPURL == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		if config.RequireAMQP {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.WithComponent(log.ComponentBackend).Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return nil, nil
	}
	f.logger.WithComponent(log.ComponentBackend).Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client, nil
}
