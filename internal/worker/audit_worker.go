// Package worker turns expense events into audit rows.
package worker

import (
	"context"
	"fmt"

	"chitieu/internal/amqp"
	"chitieu/internal/log"
	"chitieu/internal/sheets"
	"chitieu/internal/storage"
)

// AuditWorker records every expense event in the audit store and,
// optionally, mirrors it to a spreadsheet.
type AuditWorker struct {
	store  storage.AuditStore
	mirror sheets.AuditWriter
	logger *log.Logger
}

// NewAuditWorker builds the worker. mirror may be nil.
func NewAuditWorker(store storage.AuditStore, mirror sheets.AuditWriter, logger *log.Logger) *AuditWorker {
	return &AuditWorker{
		store:  store,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent is an amqp.Handler. Only a failed audit insert is returned
// (and so redelivered); mirror failures are logged.
func (w *AuditWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	entry := ev.AuditEntry()
	if err := w.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append audit for expense %d: %w", ev.ExpenseID, err)
	}

	if w.mirror != nil {
		ref, err := w.mirror.AppendAudit(ctx, entry)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror audit row",
				log.FieldExpenseID, ev.ExpenseID,
				log.FieldOperation, log.OpAppend,
				log.FieldError, err)
			return nil
		}
		w.logger.DebugContext(ctx, "Audit row mirrored", log.FieldExpenseID, ev.ExpenseID, "ref", ref)
	}

	w.logger.InfoContext(ctx, "Expense event recorded",
		log.FieldExpenseID, ev.ExpenseID,
		log.FieldUserID, ev.UserID,
		log.FieldEventType, ev.Type,
		log.FieldField, ev.Field)
	return nil
}
