package webui

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chitieu/internal/core"
)

// Status is the lifecycle state of a FieldEditSession.
type Status int

const (
	Editing Status = iota
	Submitting
	Confirmed
	Failed
)

func (s Status) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == Confirmed || s == Failed }

var errTransition = errors.New("invalid session transition")

var transitions = map[Status][]Status{
	Editing:    {Submitting, Failed},
	Submitting: {Confirmed, Failed},
}

// FieldEditSession tracks one edit of one field, from focus to the
// server's verdict.
type FieldEditSession struct {
	ID      string
	Key     FieldKey
	Raw     string
	Coerced *core.Value
	Status  Status
	// Version orders sessions of the same field; Generation ties the
	// session to the page it was started on.
	Version    uint64
	Generation uint64
	Err        error

	dirty bool
}

func newSession(key FieldKey, raw string, version, generation uint64) *FieldEditSession {
	return &FieldEditSession{
		ID:         uuid.NewString(),
		Key:        key,
		Raw:        raw,
		Status:     Editing,
		Version:    version,
		Generation: generation,
	}
}

// Dirty reports whether any input arrived since focus.
func (s *FieldEditSession) Dirty() bool { return s.dirty }

func (s *FieldEditSession) input(text string) {
	s.Raw = text
	s.dirty = true
}

func (s *FieldEditSession) transition(to Status) error {
	for _, next := range transitions[s.Status] {
		if next == to {
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", errTransition, s.Status, to)
}

// commit coerces the raw input. On success the session is Submitting and
// the value is ready to send; on failure it is Failed.
func (s *FieldEditSession) commit() (core.Value, error) {
	v, err := core.Coerce(s.Key.Field, s.Raw)
	if err != nil {
		s.fail(err)
		return core.Value{}, err
	}
	if err := s.transition(Submitting); err != nil {
		return core.Value{}, err
	}
	s.Coerced = &v
	return v, nil
}

func (s *FieldEditSession) confirm() error {
	return s.transition(Confirmed)
}

func (s *FieldEditSession) fail(err error) {
	if s.transition(Failed) == nil {
		s.Err = err
	}
}

// snapshot returns a copy safe to hand out of the event loop.
func (s *FieldEditSession) snapshot() FieldEditSession {
	c := *s
	if s.Coerced != nil {
		v := *s.Coerced
		c.Coerced = &v
	}
	return c
}
