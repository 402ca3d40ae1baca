package worker

import (
	"context"
	"errors"
	"testing"

	"chitieu/internal/amqp"
	"chitieu/internal/core"
	"chitieu/internal/log"
	"chitieu/internal/sheets/memory"
	"chitieu/internal/storage"
)

type failingMirror struct{}

func (failingMirror) AppendAudit(context.Context, core.AuditEntry) (string, error) {
	return "", errors.New("quota exceeded")
}

type failingStore struct{ storage.AuditStore }

func (failingStore) AppendAudit(context.Context, core.AuditEntry) error {
	return errors.New("disk full")
}

func updatedEvent() *amqp.ExpenseEvent {
	before := core.Expense{ID: 5, UserID: 1, Category: "food"}
	after := before
	after.Category = "bills"
	return amqp.NewFieldUpdatedEvent(before, after, core.FieldCategory)
}

func TestAuditWorker_HandleEvent(t *testing.T) {
	store := storage.NewMemoryRepository()
	mirror := memory.New()
	w := NewAuditWorker(store, mirror, log.Discard())

	if err := w.HandleEvent(context.Background(), updatedEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	rows, _ := store.ListAudit(context.Background(), 5)
	if len(rows) != 1 || rows[0].OldValue != "food" || rows[0].NewValue != "bills" {
		t.Fatalf("audit = %+v", rows)
	}
	if len(mirror.Rows()) != 1 {
		t.Fatalf("mirror rows = %v", mirror.Rows())
	}
}

func TestAuditWorker_MirrorFailureIsNotFatal(t *testing.T) {
	store := storage.NewMemoryRepository()
	w := NewAuditWorker(store, failingMirror{}, log.Discard())
	if err := w.HandleEvent(context.Background(), updatedEvent()); err != nil {
		t.Fatalf("mirror failure should be swallowed, got %v", err)
	}
	if rows, _ := store.ListAudit(context.Background(), 5); len(rows) != 1 {
		t.Fatalf("audit row should still be written")
	}
}

func TestAuditWorker_StoreFailureRequeues(t *testing.T) {
	w := NewAuditWorker(failingStore{}, nil, log.Discard())
	if err := w.HandleEvent(context.Background(), updatedEvent()); err == nil {
		t.Fatal("expected error so the message is redelivered")
	}
}
