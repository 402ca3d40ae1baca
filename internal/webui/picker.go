package webui

import (
	"net/url"
	"time"

	"chitieu/internal/daterange"
)

// RangeSource yields the date window the page should show.
type RangeSource interface {
	Range() daterange.Range
}

// RangePicker is the headless date range picker: a set of named presets
// and a DD/MM/YYYY - DD/MM/YYYY text form.
type RangePicker struct {
	presets *daterange.Presets
	now     func() time.Time
	current daterange.Range
}

func NewRangePicker(presets *daterange.Presets, now func() time.Time) *RangePicker {
	if presets == nil {
		presets = daterange.Default()
	}
	if now == nil {
		now = time.Now
	}
	p := &RangePicker{presets: presets, now: now}
	p.current, _ = presets.Resolve("this_month", now())
	return p
}

// Init reads the picker's initial value from the text of its input. Text
// that does not parse leaves the current range alone.
func (p *RangePicker) Init(text string) error {
	r, err := daterange.Parse(text, p.now().Location())
	if err != nil {
		return err
	}
	p.current = r
	return nil
}

// Choose selects a named preset relative to now.
func (p *RangePicker) Choose(key string) error {
	r, err := p.presets.Resolve(key, p.now())
	if err != nil {
		return err
	}
	p.current = r
	return nil
}

func (p *RangePicker) Set(r daterange.Range) { p.current = r }

func (p *RangePicker) Range() daterange.Range { return p.current }

// Text renders the current range the way the input shows it.
func (p *RangePicker) Text() string { return daterange.Format(p.current) }

func (p *RangePicker) Presets() []daterange.Preset { return p.presets.List() }

// Query returns the filter query string for src.
func Query(src RangeSource) url.Values {
	start, end := src.Range().ISO()
	return url.Values{"start": {start}, "end": {end}}
}
