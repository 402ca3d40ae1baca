package webui

import (
	"net/url"
	"sync/atomic"

	"chitieu/internal/daterange"
)

// Event is something the page reacts to. User events are created by the
// caller and passed to PageController.Dispatch; the controller's own
// task results travel the same channel.
type Event interface {
	event()
}

// Default tracks whether a handler suppressed an event's default action.
// It is read after the controller has settled.
type Default struct {
	prevented atomic.Bool
}

func (d *Default) PreventDefault() { d.prevented.Store(true) }

func (d *Default) DefaultPrevented() bool { return d.prevented.Load() }

// Focus starts editing a field.
type Focus struct{ Key FieldKey }

// Input carries the live text of a contenteditable field.
type Input struct {
	Key  FieldKey
	Text string
}

// Blur leaves a contenteditable field.
type Blur struct{ Key FieldKey }

// Change selects a new option in a select field.
type Change struct {
	Key   FieldKey
	Value string
}

// KeyDown is a key press inside a field. Name follows the DOM key names,
// e.g. "Enter".
type KeyDown struct {
	Default
	Key  FieldKey
	Name string
}

// SetFormField types into a named control of a form.
type SetFormField struct {
	Form  string
	Name  string
	Value string
}

// Submit submits the form with the given id.
type Submit struct {
	Default
	Form string
}

// PickPreset selects a named range in the date picker.
type PickPreset struct{ Key string }

// PickRange sets the date picker to an explicit range.
type PickRange struct{ Range daterange.Range }

// Navigate loads the page with the given filters. A nil Query reloads
// the current one.
type Navigate struct {
	Query url.Values
}

func (*Focus) event()        {}
func (*Input) event()        {}
func (*Blur) event()         {}
func (*Change) event()       {}
func (*KeyDown) event()      {}
func (*SetFormField) event() {}
func (*Submit) event()       {}
func (*PickPreset) event()   {}
func (*PickRange) event()    {}
func (*Navigate) event()     {}
