package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chitieu/internal/core"
	"chitieu/internal/log"

	_ "modernc.org/sqlite"
)

const expenseColumns = "id, user_id, amount_dong, description, category, date, raw_text"

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var (
	_ Repository = (*SQLiteRepository)(nil)
	_ AuditStore = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the server's goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount_dong, description, category, date, raw_text)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Amount.Dong, e.Description, e.Category, formatTime(e.Date), e.RawText)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id

	r.logger.DebugContext(ctx, "Expense saved to SQLite",
		log.FieldExpenseID, id,
		log.FieldUserID, e.UserID,
		log.FieldAmountDong, e.Amount.Dong)
	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, q core.ListQuery) ([]core.Expense, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(q.To))
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateExpenseField(ctx context.Context, userID, id int64, p core.FieldPatch) (core.Expense, core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, core.Expense{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	before, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.Expense{}, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}

	after, err := before.Apply(p)
	if err != nil {
		return core.Expense{}, core.Expense{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE expenses SET amount_dong = ?, description = ?, category = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		after.Amount.Dong, after.Description, after.Category, id, userID)
	if err != nil {
		return core.Expense{}, core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, core.Expense{}, fmt.Errorf("commit: %w", err)
	}
	return before, after, nil
}

func (r *SQLiteRepository) CategoryTotals(ctx context.Context, userID int64, from, to time.Time) ([]core.CategoryAmount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_dong), COUNT(*) FROM expenses
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 GROUP BY category ORDER BY SUM(amount_dong) DESC, category`,
		userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Category, &ca.Amount.Dong, &ca.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AppendAudit(ctx context.Context, a core.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_audit (expense_id, user_id, action, field, old_value, new_value, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ExpenseID, a.UserID, a.Action, a.Field, a.OldValue, a.NewValue, formatTime(a.At))
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAudit(ctx context.Context, expenseID int64) ([]core.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT expense_id, user_id, action, field, old_value, new_value, at
		 FROM expense_audit WHERE expense_id = ? ORDER BY id`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			a  core.AuditEntry
			at string
		)
		if err := rows.Scan(&a.ExpenseID, &a.UserID, &a.Action, &a.Field, &a.OldValue, &a.NewValue, &at); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if a.At, err = core.ParseTimestamp(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e    core.Expense
		date string
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Amount.Dong, &e.Description, &e.Category, &date, &e.RawText); err != nil {
		return core.Expense{}, err
	}
	t, err := core.ParseTimestamp(date)
	if err != nil {
		return core.Expense{}, err
	}
	e.Date = t
	return e, nil
}

func formatTime(t time.Time) string {
	return t.In(core.Location).Format(core.TimestampLayout)
}
