package daterange

import (
	"errors"
	"testing"
	"time"
)

var ict = time.FixedZone("ICT", 7*60*60)

func TestDefaultPresets(t *testing.T) {
	p := Default()
	keys := []string{"today", "yesterday", "last_7_days", "last_30_days", "this_month", "last_month"}
	list := p.List()
	if len(list) != len(keys) {
		t.Fatalf("got %d presets, want %d", len(list), len(keys))
	}
	for i, k := range keys {
		if list[i].Key != k {
			t.Fatalf("preset %d = %q, want %q", i, list[i].Key, k)
		}
		if list[i].Label == "" {
			t.Fatalf("preset %q has no label", k)
		}
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, ict)
	cases := []struct {
		key   string
		start string
		end   string
		days  int
	}{
		{"today", "05/03/2026", "05/03/2026", 1},
		{"yesterday", "04/03/2026", "04/03/2026", 1},
		{"last_7_days", "27/02/2026", "05/03/2026", 7},
		{"last_30_days", "04/02/2026", "05/03/2026", 30},
		{"this_month", "01/03/2026", "31/03/2026", 31},
		{"last_month", "01/02/2026", "28/02/2026", 28},
	}
	p := Default()
	for _, tc := range cases {
		r, err := p.Resolve(tc.key, now)
		if err != nil {
			t.Fatalf("%s: %v", tc.key, err)
		}
		if got := Format(r); got != tc.start+Separator+tc.end {
			t.Fatalf("%s: got %q", tc.key, got)
		}
		if r.Days() != tc.days {
			t.Fatalf("%s: %d days, want %d", tc.key, r.Days(), tc.days)
		}
		if !r.Contains(r.Start) || !r.Contains(r.End) {
			t.Fatalf("%s: range should contain its ends", tc.key)
		}
	}
	if _, err := p.Resolve("forever", now); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestParse(t *testing.T) {
	r, err := Parse("01/10/2026 - 15/10/2026", ict)
	if err != nil {
		t.Fatal(err)
	}
	start, end := r.ISO()
	if start != "2026-10-01" || end != "2026-10-15" {
		t.Fatalf("got %s..%s", start, end)
	}
	if r.End.Hour() != 23 {
		t.Fatalf("end should be end of day, got %v", r.End)
	}

	single, err := Parse("15/10/2026", ict)
	if err != nil || single.Days() != 1 {
		t.Fatalf("single day: %v %v", single, err)
	}

	for _, bad := range []string{"", "2026-10-01 - 2026-10-15", "15/10/2026 - 01/10/2026", "32/01/2026"} {
		if _, err := Parse(bad, ict); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("%q: expected ErrInvalidRange, got %v", bad, err)
		}
	}
}

func TestLoadRejectsBadPresets(t *testing.T) {
	bad := []byte(`
presets:
  - key: a
    unit: week
    span: 1
  - key: a
    unit: day
    span: 1
  - key: b
    unit: day
    span: 0
`)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected validation error")
	}
}
