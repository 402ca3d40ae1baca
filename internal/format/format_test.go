package format

import (
	"strings"
	"testing"
	"time"

	"chitieu/internal/core"
)

func TestNumberAndCurrency(t *testing.T) {
	f := New()
	cases := []struct {
		in       float64
		number   string
		currency string
	}{
		{150000, "150.000", "150.000" + SymbolSeparator + "₫"},
		{1250000, "1.250.000", "1.250.000" + SymbolSeparator + "₫"},
		{999, "999", "999" + SymbolSeparator + "₫"},
		{1500.6, "1.501", "1.501" + SymbolSeparator + "₫"},
		{0, "0", "0" + SymbolSeparator + "₫"},
	}
	for _, tc := range cases {
		if got := f.Number(tc.in); got != tc.number {
			t.Fatalf("Number(%v) = %q, want %q", tc.in, got, tc.number)
		}
		if got := f.Currency(tc.in); got != tc.currency {
			t.Fatalf("Currency(%v) = %q, want %q", tc.in, got, tc.currency)
		}
	}
	if f.Scale() != 0 {
		t.Fatalf("VND scale = %d, want 0", f.Scale())
	}
}

func TestDates(t *testing.T) {
	f := New()
	ts := time.Date(2026, 10, 15, 14, 30, 0, 0, core.Location)
	if got := f.DateTime(ts); got != "15 tháng 10, 2026 14:30" {
		t.Fatalf("DateTime = %q", got)
	}
	if got := f.ShortDate(ts); got != "15/10/2026" {
		t.Fatalf("ShortDate = %q", got)
	}
	if got := f.DateTime(ts.UTC()); got != "15 tháng 10, 2026 14:30" {
		t.Fatalf("DateTime should render in local zone, got %q", got)
	}
}

func TestFormatField(t *testing.T) {
	f := New()
	cases := []struct {
		field string
		v     core.Value
		want  string
	}{
		{core.FieldAmount, core.Number(150000), "150.000"},
		{core.FieldAmount, core.Text("oops"), "oops"},
		{core.FieldCategory, core.Text("food"), "food"},
		{core.FieldDescription, core.Text("phở bò"), "phở bò"},
		{core.FieldDate, core.Text("2026-10-15 14:30:00"), "15 tháng 10, 2026 14:30"},
	}
	for _, tc := range cases {
		if got := f.Format(tc.field, tc.v); got != tc.want {
			t.Fatalf("Format(%s, %v) = %q, want %q", tc.field, tc.v, got, tc.want)
		}
	}
}

func TestAmountRoundTrip(t *testing.T) {
	f := New()
	for _, raw := range []string{
		"150000", "150.000", "1,250,000", "7", "-42000", "150.000 ₫", "150.000" + SymbolSeparator + "₫",
		"4.000.000.000.000.000.000", "-4.611.686.018.427.387.904",
	} {
		v, err := core.Coerce(core.FieldAmount, raw)
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		again, err := core.Coerce(core.FieldAmount, f.Format(core.FieldAmount, v))
		if err != nil {
			t.Fatalf("%q: re-coerce: %v", raw, err)
		}
		if !again.Equal(v) {
			t.Fatalf("%q: round trip gave %v, want %v", raw, again, v)
		}
		viaCurrency, err := core.Coerce(core.FieldAmount, f.Currency(v.Number))
		if err != nil || !viaCurrency.Equal(v) {
			t.Fatalf("%q: currency round trip gave %v (%v)", raw, viaCurrency, err)
		}
	}
}

func TestDisplayIdempotent(t *testing.T) {
	f := New()
	once, ok := f.DisplayAmount("150000.0")
	if !ok || once != "150.000"+SymbolSeparator+"₫" {
		t.Fatalf("DisplayAmount = %q, %v", once, ok)
	}
	twice, ok := f.DisplayAmount(once)
	if ok || twice != once {
		t.Fatalf("second pass changed %q to %q", once, twice)
	}

	d, ok := f.DisplayDate("2026-10-15 14:30:00")
	if !ok || d != "15 tháng 10, 2026 14:30" {
		t.Fatalf("DisplayDate = %q, %v", d, ok)
	}
	if again, ok := f.DisplayDate(d); ok || again != d {
		t.Fatalf("second pass changed %q to %q", d, again)
	}
}

func TestNumberBeyondInt64(t *testing.T) {
	f := New()
	if got := f.Number(1e20); strings.HasPrefix(got, "-") || !strings.HasPrefix(got, "100.000.000") {
		t.Fatalf("Number(1e20) = %q", got)
	}
	for _, raw := range []string{"9.223.372.036.854.775.807", "100.000.000.000.000.000.000"} {
		if _, err := core.Coerce(core.FieldAmount, raw); err == nil {
			t.Fatalf("%q: accepted an amount beyond the limit", raw)
		}
	}
}
