// Package services holds the expense use cases shared by the HTTP server
// and the audit worker.
package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"chitieu/internal/amqp"
	"chitieu/internal/cache"
	"chitieu/internal/core"
	"chitieu/internal/log"
	"chitieu/internal/storage"
)

// EventPublisher publishes expense change events. amqp.Client implements it.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev *amqp.ExpenseEvent) error
}

// NewExpense is the raw creation form.
type NewExpense struct {
	Amount      string
	Description string
	Category    string
	Date        string
	RawText     string
}

// Summary is the dashboard header for a date range.
type Summary struct {
	Total      core.Money
	Count      int
	AvgPerDay  float64
	Categories []core.CategoryAmount
}

type Options struct {
	Logger    *log.Logger
	CacheSize int
	CacheTTL  time.Duration
	Now       func() time.Time
}

// ExpenseService orchestrates expense operations across storage and AMQP.
type ExpenseService struct {
	repo      storage.Repository
	publisher EventPublisher
	stats     *cache.LRUCache[[]core.CategoryAmount]
	logger    *log.Logger
	events    *log.StructuredLogger
	now       func() time.Time
}

// NewExpenseService wires the service. publisher may be nil, in which case
// events are skipped.
func NewExpenseService(repo storage.Repository, publisher EventPublisher, opts Options) *ExpenseService {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.WithComponent(log.ComponentExpense)
	return &ExpenseService{
		repo:      repo,
		publisher: publisher,
		stats:     cache.NewLRUCache[[]core.CategoryAmount](opts.CacheSize, opts.CacheTTL),
		logger:    logger,
		events:    log.NewStructuredLogger(opts.Logger),
		now:       opts.Now,
	}
}

// Caches returns the caches owned by the service for periodic cleanup.
func (s *ExpenseService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.stats}
}

// Now is the service clock in the expense location.
func (s *ExpenseService) Now() time.Time {
	return s.now().In(core.Location)
}

// Create validates the form, stores the expense and publishes a created event.
func (s *ExpenseService) Create(ctx context.Context, userID int64, in NewExpense) (core.Expense, error) {
	amount, err := core.ParseMoney(in.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("amount %q: %w", in.Amount, err)
	}
	date := s.Now().Truncate(time.Second)
	if strings.TrimSpace(in.Date) != "" {
		if date, err = core.ParseTimestamp(in.Date); err != nil {
			return core.Expense{}, err
		}
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "other"
	}
	e := core.Expense{
		UserID:      userID,
		Amount:      amount,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		Date:        date,
		RawText:     strings.TrimSpace(in.RawText),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.invalidate(userID)
	s.events.LogExpenseCreated(ctx, created.ID, userID, created.Amount.Dong, created.Category)
	s.publish(ctx, amqp.NewCreatedEvent(created))
	return created, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.repo.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) List(ctx context.Context, userID int64, q core.ListQuery) ([]core.Expense, error) {
	return s.repo.ListExpenses(ctx, userID, q)
}

// UpdateField applies a single-field edit and returns the full record as stored.
func (s *ExpenseService) UpdateField(ctx context.Context, userID, id int64, p core.FieldPatch) (core.Expense, error) {
	before, after, err := s.repo.UpdateExpenseField(ctx, userID, id, p)
	if err != nil {
		return core.Expense{}, err
	}
	s.invalidate(userID)
	s.events.LogFieldUpdated(ctx, id, userID, p.Field)
	s.publish(ctx, amqp.NewFieldUpdatedEvent(before, after, p.Field))
	return after, nil
}

// Stats returns per-category totals for [from, to], cached per user.
func (s *ExpenseService) Stats(ctx context.Context, userID int64, from, to time.Time) ([]core.CategoryAmount, error) {
	key := fmt.Sprintf("%s%d|%d", userPrefix(userID), from.Unix(), to.Unix())
	if v, ok := s.stats.Get(key); ok {
		return v, nil
	}
	totals, err := s.repo.CategoryTotals(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	s.stats.Set(key, totals)
	return totals, nil
}

// Summary aggregates Stats. The average is over the days of the range that
// have already started.
func (s *ExpenseService) Summary(ctx context.Context, userID int64, from, to time.Time) (Summary, error) {
	cats, err := s.Stats(ctx, userID, from, to)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Categories: cats}
	for _, c := range cats {
		sum.Total.Dong += c.Amount.Dong
		sum.Count += c.Count
	}
	end := to
	if now := s.Now(); now.Before(end) {
		end = now
	}
	days := int(end.Sub(from).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	sum.AvgPerDay = float64(sum.Total.Dong) / float64(days)
	return sum, nil
}

func (s *ExpenseService) invalidate(userID int64) {
	s.stats.DeletePrefix(userPrefix(userID))
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("u%d|", userID)
}

func (s *ExpenseService) publish(ctx context.Context, ev *amqp.ExpenseEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping event", log.FieldEventType, ev.Type)
		return
	}
	// Don't fail the request: the expense is already stored.
	if err := s.publisher.PublishExpenseEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldExpenseID, ev.ExpenseID,
			log.FieldEventType, ev.Type,
			log.FieldError, err)
	}
}

// Close closes storage and, when it is closable, the publisher.
func (s *ExpenseService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %v", errs)
	}
	return nil
}
