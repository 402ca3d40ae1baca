package backend

import (
	"context"
	"time"

	"chitieu/internal/amqp"
	"chitieu/internal/services"
	"chitieu/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result is what a backend provides to the server and the worker.
type Result struct {
	Service *services.ExpenseService
	Audit   storage.AuditStore
	// AMQP is nil when AMQP_URL is empty or the broker was unreachable.
	AMQP *amqp.Client
	// Ready reports whether storage is reachable.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireAMQP turns a broker connection failure into an error instead
	// of a warning. The worker sets it.
	RequireAMQP bool

	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
