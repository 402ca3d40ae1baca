package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentStamp(t *testing.T) {
	var buf bytes.Buffer
	l := NewText(&buf, slog.LevelDebug, ComponentWebUI)
	l.Info("hello", FieldExpenseID, 3)
	out := buf.String()
	if !strings.Contains(out, "component=webui") || !strings.Contains(out, "expense_id=3") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewText(&buf, slog.LevelDebug, ComponentApp))
	r := httptest.NewRequest("PATCH", "/api/expenses/1/field", nil)

	sl.LogHTTPEnd(context.Background(), r, 422, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("4xx should log at WARN: %q", buf.String())
	}
	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, 500, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("5xx should log at ERROR: %q", buf.String())
	}
	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("disk full"), ComponentStorage, OpUpdate, nil)
	if !strings.Contains(buf.String(), "component=storage") || !strings.Contains(buf.String(), `error="disk full"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestFromContextFallback(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("got component %q", l.Component())
	}
	want := Discard()
	if got := FromContext(WithLogger(context.Background(), want)); got != want {
		t.Fatal("expected the stored logger")
	}
}
