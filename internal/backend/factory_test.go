package backend

import (
	"context"
	"path/filepath"
	"testing"

	goption "google.golang.org/api/option"

	"chitieu/internal/config"
	"chitieu/internal/core"
	"chitieu/internal/log"
	"chitieu/internal/services"
	"chitieu/internal/sheets/memory"
)

func TestCreateBackend(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"memory", Config{Type: MemoryBackend}},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "chitieu.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(log.Discard()).CreateBackend(ctx, tt.config)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			if res.AMQP != nil {
				t.Error("AMQP client created without URL")
			}
			if err := res.Ready(ctx); err != nil {
				t.Errorf("Ready: %v", err)
			}

			e, err := res.Service.Create(ctx, 1, services.NewExpense{
				Amount: "45.000", Description: "Phở bò", Category: "food", Date: "2026-10-15 08:00:00",
			})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := res.Audit.AppendAudit(ctx, core.AuditEntry{ExpenseID: e.ID, UserID: 1, Action: "created", At: e.Date}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
			got, err := res.Audit.ListAudit(ctx, e.ID)
			if err != nil || len(got) != 1 {
				t.Errorf("ListAudit = %v, %v", got, err)
			}
		})
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	f := NewFactory(nil)
	for _, cfg := range []Config{
		{Type: "sheets"},
		{Type: SQLiteBackend},
		{Type: MemoryBackend, RequireAMQP: true},
	} {
		if _, err := f.CreateBackend(context.Background(), cfg); err == nil {
			t.Errorf("CreateBackend(%+v) succeeded", cfg)
		}
	}
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{DataBackend: "memory", CacheSize: 10, AMQPURL: "amqp://localhost", AMQPQueue: "q"}
	got, err := FromAppConfig(app)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != MemoryBackend || got.CacheSize != 10 || got.AMQPQueue != "q" {
		t.Errorf("FromAppConfig = %+v", got)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewAuditMirror(t *testing.T) {
	ctx := context.Background()

	w, err := NewAuditMirror(ctx, &config.Config{AuditSink: MirrorNone}, log.Discard())
	if err != nil || w != nil {
		t.Errorf("none: %v, %v", w, err)
	}

	w, err = NewAuditMirror(ctx, &config.Config{AuditSink: MirrorMemory}, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(*memory.Store); !ok {
		t.Errorf("memory mirror is %T", w)
	}

	_, err = NewAuditMirror(ctx, &config.Config{AuditSink: MirrorSheets}, log.Discard(), goption.WithoutAuthentication())
	if err == nil {
		t.Error("sheets mirror without spreadsheet id should fail")
	}

	w, err = NewAuditMirror(ctx, &config.Config{AuditSink: MirrorSheets, GoogleSpreadsheetID: "sheet-1"},
		log.Discard(), goption.WithoutAuthentication(), goption.WithEndpoint("http://127.0.0.1:1/"))
	if err != nil || w == nil {
		t.Errorf("sheets mirror: %v, %v", w, err)
	}

	if _, err := NewAuditMirror(ctx, &config.Config{AuditSink: "s3"}, log.Discard()); err == nil {
		t.Error("unknown sink accepted")
	}
}
