// Package daterange resolves named date-range presets and parses the
// "DD/MM/YYYY - DD/MM/YYYY" picker format.
package daterange

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Layout is the day layout of picker values.
const Layout = "02/01/2006"

// Separator joins the two ends of a picker value.
const Separator = " - "

//go:embed presets.yaml
var defaultPresets []byte

var (
	ErrInvalidRange  = errors.New("invalid date range")
	ErrUnknownPreset = errors.New("unknown date range preset")
)

// Range is an inclusive span of whole days. Start is the first instant of
// the first day; End is the last second of the last day.
type Range struct {
	Start time.Time
	End   time.Time
}

type Unit string

const (
	Day   Unit = "day"
	Month Unit = "month"
)

type Preset struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	Unit   Unit   `yaml:"unit"`
	Offset int    `yaml:"offset"`
	Span   int    `yaml:"span"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Presets is an ordered set of named ranges.
type Presets struct {
	list []Preset
}

// Default returns the embedded presets.
func Default() *Presets {
	p, err := Load(defaultPresets)
	if err != nil {
		panic(fmt.Sprintf("embedded presets: %v", err))
	}
	return p
}

// Load parses preset definitions from YAML.
func Load(b []byte) (*Presets, error) {
	var f presetFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	seen := make(map[string]bool, len(f.Presets))
	var errs []string
	for i, p := range f.Presets {
		switch {
		case p.Key == "":
			errs = append(errs, fmt.Sprintf("preset %d: missing key", i))
		case seen[p.Key]:
			errs = append(errs, fmt.Sprintf("preset %q: duplicate key", p.Key))
		case p.Unit != Day && p.Unit != Month:
			errs = append(errs, fmt.Sprintf("preset %q: unit must be day or month", p.Key))
		case p.Span < 1:
			errs = append(errs, fmt.Sprintf("preset %q: span must be positive", p.Key))
		}
		seen[p.Key] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid presets:\n- %s", strings.Join(errs, "\n- "))
	}
	return &Presets{list: f.Presets}, nil
}

func (p *Presets) List() []Preset {
	out := make([]Preset, len(p.list))
	copy(out, p.list)
	return out
}

func (p *Presets) Get(key string) (Preset, bool) {
	for _, pr := range p.list {
		if pr.Key == key {
			return pr, true
		}
	}
	return Preset{}, false
}

// Resolve returns the range for preset key relative to now.
func (p *Presets) Resolve(key string, now time.Time) (Range, error) {
	pr, ok := p.Get(key)
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrUnknownPreset, key)
	}
	return pr.Resolve(now), nil
}

// Resolve returns the range of pr relative to now, in now's location.
func (pr Preset) Resolve(now time.Time) Range {
	y, m, d := now.Date()
	loc := now.Location()
	var start, endExclusive time.Time
	switch pr.Unit {
	case Month:
		start = time.Date(y, m+time.Month(pr.Offset), 1, 0, 0, 0, 0, loc)
		endExclusive = start.AddDate(0, pr.Span, 0)
	default:
		start = time.Date(y, m, d+pr.Offset, 0, 0, 0, 0, loc)
		endExclusive = start.AddDate(0, 0, pr.Span)
	}
	return Range{Start: start, End: endExclusive.Add(-time.Second)}
}

// Days returns the number of calendar days covered by r.
func (r Range) Days() int {
	s := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

// Contains reports whether t falls inside r.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Between builds a whole-day range from two dates in loc.
func Between(start, end time.Time, loc *time.Location) (Range, error) {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	e := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	if e.Before(s) {
		return Range{}, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	return Range{Start: s, End: e}, nil
}

// Parse reads "DD/MM/YYYY - DD/MM/YYYY". A single date means that one day.
func Parse(s string, loc *time.Location) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("%w: empty", ErrInvalidRange)
	}
	from, to, found := strings.Cut(s, Separator)
	if !found {
		to = from
	}
	start, err := time.ParseInLocation(Layout, strings.TrimSpace(from), loc)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, from)
	}
	end, err := time.ParseInLocation(Layout, strings.TrimSpace(to), loc)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, to)
	}
	return Between(start, end, loc)
}

// Format renders r in the picker format.
func Format(r Range) string {
	return r.Start.Format(Layout) + Separator + r.End.Format(Layout)
}

// ISO returns the query-string form of both ends (YYYY-MM-DD).
func (r Range) ISO() (start, end string) {
	return r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly)
}
