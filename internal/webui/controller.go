// Package webui is a headless rendition of the dashboard's scripts. It
// loads the server-rendered page, formats it, and reconciles inline field
// edits and new expenses with the JSON API.
package webui

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"chitieu/internal/core"
	"chitieu/internal/daterange"
	"chitieu/internal/format"
	"chitieu/internal/log"
)

// Element ids of the page.
const (
	FormExpense   = "expense-form"
	FormFilter    = "filter-form"
	inputRange    = "daterange"
	notifications = "notifications"
)

var ErrStopped = errors.New("page controller stopped")

type Options struct {
	Logger    *log.Logger
	Formatter *format.Formatter
	Presets   *daterange.Presets
	// Resyncer recovers from failed edits. Defaults to FullReload.
	Resyncer Resyncer
	Notifier Notifier
	Now      func() time.Time
	// Timeout bounds each network task. Defaults to 15 seconds.
	Timeout time.Duration
}

// PageController owns one page: the parsed document, its bound fields and
// every edit session. All of that state is touched only by the Run loop.
type PageController struct {
	client   *Client
	logger   *log.Logger
	format   *format.Formatter
	resyncer Resyncer
	notifier Notifier
	picker   *RangePicker
	creation *CreationController
	timeout  time.Duration

	events chan Event
	done   chan struct{}
	work   tracker

	doc        *Document
	query      url.Values
	fields     map[FieldKey]*Element
	sessions   map[FieldKey]*FieldEditSession
	versions   map[FieldKey]uint64
	generation uint64
	loadSeq    uint64
	resyncs    uint64
}

func NewPageController(client *Client, opts Options) *PageController {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Formatter == nil {
		opts.Formatter = format.New()
	}
	if opts.Resyncer == nil {
		opts.Resyncer = FullReload{Client: client}
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(context.Context, Notification) {})
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	logger := opts.Logger.WithComponent(log.ComponentWebUI)
	return &PageController{
		client:   client,
		logger:   logger,
		format:   opts.Formatter,
		resyncer: opts.Resyncer,
		notifier: opts.Notifier,
		picker:   NewRangePicker(opts.Presets, opts.Now),
		creation: &CreationController{client: client, logger: logger},
		timeout:  opts.Timeout,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		fields:   make(map[FieldKey]*Element),
		sessions: make(map[FieldKey]*FieldEditSession),
		versions: make(map[FieldKey]uint64),
	}
}

// Run processes events until ctx is done. It must be called once.
func (c *PageController) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
			c.work.done()
		}
	}
}

// Dispatch queues ev for the loop. Events sent after Run returned are
// dropped.
func (c *PageController) Dispatch(ev Event) {
	c.work.add()
	select {
	case c.events <- ev:
	case <-c.done:
		c.work.done()
	}
}

// Settle waits until every queued event and network task has been
// handled, including the events those produced.
func (c *PageController) Settle(ctx context.Context) error {
	select {
	case <-c.work.wait():
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs task off the loop and feeds its result back in.
func (c *PageController) spawn(ctx context.Context, task func(context.Context) Event) {
	c.work.add()
	go func() {
		defer c.work.done()
		tctx, cancel := context.WithTimeout(ctx, c.timeout)
		ev := task(tctx)
		cancel()
		c.Dispatch(ev)
	}()
}

func (c *PageController) handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case *Focus:
		c.focus(e.Key)
	case *Input:
		c.input(e.Key, e.Text)
	case *Blur:
		c.blur(ctx, e.Key)
	case *Change:
		c.change(ctx, e.Key, e.Value)
	case *KeyDown:
		c.keyDown(ctx, e)
	case *SetFormField:
		c.setFormField(e)
	case *Submit:
		c.submit(ctx, e)
	case *PickPreset:
		if err := c.picker.Choose(e.Key); err != nil {
			c.logger.WarnContext(ctx, "Unknown range preset", log.FieldError, err)
			return
		}
		c.syncPicker()
	case *PickRange:
		c.picker.Set(e.Range)
		c.syncPicker()
	case *Navigate:
		q := e.Query
		if q == nil {
			q = c.query
		}
		c.load(ctx, q)
	case *loadResult:
		c.applyLoad(ctx, e)
	case *patchResult:
		c.applyPatch(ctx, e)
	case *createResult:
		c.applyCreate(ctx, e)
	case *resyncResult:
		c.applyResync(ctx, e)
	case *inspect:
		e.fn()
		close(e.done)
	default:
		c.logger.WarnContext(ctx, "Unhandled event", "event", ev)
	}
}

// load fetches the page for q. Only the latest load is applied.
func (c *PageController) load(ctx context.Context, q url.Values) {
	c.loadSeq++
	seq := c.loadSeq
	c.spawn(ctx, func(tctx context.Context) Event {
		doc, err := c.client.LoadPage(tctx, q)
		return &loadResult{seq: seq, query: q, doc: doc, err: err}
	})
}

type loadResult struct {
	seq   uint64
	query url.Values
	doc   *Document
	err   error
}

func (c *PageController) applyLoad(ctx context.Context, r *loadResult) {
	if r.seq != c.loadSeq {
		return
	}
	if r.err != nil {
		c.logger.ErrorContext(ctx, "Page load failed", log.FieldError, r.err)
		c.notify(ctx, LevelError, msgReloadFailed, nil)
		return
	}
	c.replace(ctx, r.doc, r.query)
}

// replace installs a freshly loaded document. Sessions of the previous
// page are abandoned: their results carry an older generation.
func (c *PageController) replace(ctx context.Context, doc *Document, q url.Values) {
	c.doc = doc
	c.query = q
	c.generation++
	c.sessions = make(map[FieldKey]*FieldEditSession)
	c.pageReady()
	c.logger.DebugContext(ctx, "Page ready",
		log.FieldGeneration, c.generation,
		"fields", len(c.fields))
}

// pageReady formats raw values once and binds the interactive parts.
// Elements already formatted are skipped.
func (c *PageController) pageReady() {
	for _, el := range c.doc.ByClass("amount") {
		c.formatOnce(el, c.format.DisplayAmount)
	}
	for _, el := range c.doc.ByClass("date") {
		c.formatOnce(el, c.format.DisplayDate)
	}

	c.fields = make(map[FieldKey]*Element)
	for _, el := range c.doc.Editable() {
		key, ok := el.Key()
		if !ok {
			continue
		}
		if key.Field == core.FieldAmount && el.ContentEditable() {
			c.formatOnce(el, func(raw string) (string, bool) {
				f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
				if err != nil {
					return raw, false
				}
				return c.format.Format(core.FieldAmount, core.Number(f)), true
			})
		}
		c.fields[key] = el
	}

	c.creation.bind(c.doc.ByID(FormExpense))

	if in := c.doc.ByID(inputRange); in != nil {
		if v, _ := in.Attr(attrValue); v != "" {
			if err := c.picker.Init(v); err != nil {
				c.logger.Warn("Unreadable range in filter form", log.FieldError, err)
			}
		}
	}
}

func (c *PageController) formatOnce(el *Element, render func(string) (string, bool)) {
	if _, done := el.Attr(attrFormatted); done {
		return
	}
	if text, ok := render(el.Text()); ok {
		el.SetText(text)
	}
	el.SetAttr(attrFormatted, "")
}

func (c *PageController) syncPicker() {
	if c.doc == nil {
		return
	}
	if in := c.doc.ByID(inputRange); in != nil {
		in.SetValue(c.picker.Text())
	}
}

// active returns the field's session if it is still being edited.
func (c *PageController) active(key FieldKey) *FieldEditSession {
	if s := c.sessions[key]; s != nil && s.Status == Editing {
		return s
	}
	return nil
}

func (c *PageController) focus(key FieldKey) *FieldEditSession {
	el := c.fields[key]
	if el == nil {
		c.logger.Debug("Event for unbound field", log.FieldField, key.String())
		return nil
	}
	c.versions[key]++
	s := newSession(key, el.Value(), c.versions[key], c.generation)
	c.sessions[key] = s
	return s
}

func (c *PageController) input(key FieldKey, text string) {
	s := c.active(key)
	if s == nil {
		if s = c.focus(key); s == nil {
			return
		}
	}
	c.fields[key].SetText(text)
	s.input(text)
}

func (c *PageController) blur(ctx context.Context, key FieldKey) {
	if s := c.active(key); s != nil {
		c.commit(ctx, s)
	}
}

func (c *PageController) keyDown(ctx context.Context, e *KeyDown) {
	if e.Name != "Enter" {
		return
	}
	el := c.fields[e.Key]
	if el == nil || !el.ContentEditable() {
		return
	}
	e.PreventDefault()
	c.blur(ctx, e.Key)
}

func (c *PageController) change(ctx context.Context, key FieldKey, value string) {
	el := c.fields[key]
	if el == nil || !el.IsSelect() {
		return
	}
	s := c.active(key)
	if s == nil {
		s = c.focus(key)
	}
	if !el.SetValue(value) {
		c.logger.WarnContext(ctx, "No such option", log.FieldField, key.String(), "value", value)
		delete(c.sessions, key)
		return
	}
	s.input(value)
	c.commit(ctx, s)
}

// commit coerces the session's input and sends it. A session without input
// ends quietly.
func (c *PageController) commit(ctx context.Context, s *FieldEditSession) {
	if !s.Dirty() {
		delete(c.sessions, s.Key)
		return
	}
	v, err := s.commit()
	if err != nil {
		c.failSession(ctx, s, err)
		return
	}
	c.logger.DebugContext(ctx, "Submitting field edit",
		log.NewFields().WithFieldEdit(s.Key.ExpenseID, s.Key.Field, s.ID, s.Version).ToSlice()...)
	key, generation := s.Key, s.Generation
	c.spawn(ctx, func(tctx context.Context) Event {
		rec, err := c.client.PatchField(tctx, key, v)
		return &patchResult{session: s, generation: generation, record: rec, err: err}
	})
}

type patchResult struct {
	// session is only touched on the loop.
	session    *FieldEditSession
	generation uint64
	record     Record
	err        error
}

func (c *PageController) applyPatch(ctx context.Context, r *patchResult) {
	s := r.session
	fields := log.NewFields().WithFieldEdit(s.Key.ExpenseID, s.Key.Field, s.ID, s.Version)
	if r.generation != c.generation {
		c.logger.DebugContext(ctx, "Result for abandoned page ignored", fields.ToSlice()...)
		return
	}

	var v core.Value
	err := r.err
	if err == nil {
		var ok bool
		if v, ok = r.record.Value(s.Key.Field); !ok {
			err = &RequestError{Status: http.StatusOK, Detail: "response has no " + s.Key.Field}
		}
	}
	if err != nil {
		c.failSession(ctx, s, err)
		return
	}

	if err := s.confirm(); err != nil {
		c.logger.WarnContext(ctx, "Confirm rejected", fields.WithError(err).ToSlice()...)
		return
	}
	if s.Version < c.versions[s.Key] {
		c.logger.DebugContext(ctx, "Stale confirmation discarded", fields.ToSlice()...)
		return
	}
	if el := c.fields[s.Key]; el != nil {
		c.show(el, s.Key.Field, v)
	}
	c.logger.InfoContext(ctx, "Field edit confirmed", fields.WithOperation(log.OpUpdate).ToSlice()...)
}

// show renders a server value into a bound element.
func (c *PageController) show(el *Element, field string, v core.Value) {
	if el.IsSelect() {
		el.SetValue(v.String())
		return
	}
	el.SetText(c.format.Format(field, v))
}

// failSession reports the failure and resynchronizes once. The element is
// left as it is until the resync lands.
func (c *PageController) failSession(ctx context.Context, s *FieldEditSession, err error) {
	s.fail(err)
	fields := log.NewFields().WithFieldEdit(s.Key.ExpenseID, s.Key.Field, s.ID, s.Version).WithError(err)
	var coerce *core.CoercionError
	if errors.As(err, &coerce) {
		fields = fields.WithErrorType(log.ErrorTypeValidation)
	} else {
		fields = fields.WithErrorType(log.ErrorTypeNetwork)
	}
	c.logger.WarnContext(ctx, "Field edit failed", fields.ToSlice()...)
	key := s.Key
	c.notify(ctx, LevelError, messageFor(err), &key)
	c.resync(ctx, Target{Key: key, Query: c.query})
}

func (c *PageController) resync(ctx context.Context, t Target) {
	c.resyncs++
	generation := c.generation
	c.spawn(ctx, func(tctx context.Context) Event {
		out, err := c.resyncer.Resync(tctx, t)
		return &resyncResult{target: t, generation: generation, outcome: out, err: err}
	})
}

type resyncResult struct {
	target     Target
	generation uint64
	outcome    Outcome
	err        error
}

func (c *PageController) applyResync(ctx context.Context, r *resyncResult) {
	if r.generation != c.generation {
		// A newer page already replaced the one this resync was for.
		c.logger.DebugContext(ctx, "Superseded resync dropped",
			log.FieldOperation, log.OpResync,
			log.FieldError, r.err)
		return
	}
	if r.err != nil {
		c.logger.ErrorContext(ctx, "Resync failed",
			log.FieldOperation, log.OpResync,
			log.FieldError, r.err)
		c.notify(ctx, LevelError, msgReloadFailed, nil)
		return
	}
	switch {
	case r.outcome.Document != nil:
		c.loadSeq++
		c.replace(ctx, r.outcome.Document, r.target.Query)
	case r.outcome.Record != nil:
		if !c.refreshRow(r.outcome.Record) {
			c.load(ctx, c.query)
		}
	}
	c.logger.InfoContext(ctx, "Resynchronized",
		log.FieldOperation, log.OpResync,
		log.FieldExpenseID, r.target.Key.ExpenseID,
		log.FieldGeneration, c.generation)
}

// refreshRow re-renders one expense row from rec. Fields the user is
// still editing are left alone.
func (c *PageController) refreshRow(rec Record) bool {
	id := rec.ID()
	row := c.doc.Row(id)
	if row == nil {
		return false
	}
	for key, el := range c.fields {
		if key.ExpenseID != id || c.active(key) != nil {
			continue
		}
		if v, ok := rec.Value(key.Field); ok {
			c.show(el, key.Field, v)
		}
	}
	if v, ok := rec.Value(core.FieldDate); ok {
		for _, el := range row.ByClass("date") {
			if text, ok := c.format.DisplayDate(v.String()); ok {
				el.SetText(text)
			}
		}
	}
	return true
}

func (c *PageController) setFormField(e *SetFormField) {
	if c.doc == nil {
		return
	}
	form := c.doc.ByID(e.Form)
	if form == nil || !form.SetFormValue(e.Name, e.Value) {
		c.logger.Warn("Cannot set form field", "form", e.Form, "name", e.Name)
	}
}

func (c *PageController) submit(ctx context.Context, e *Submit) {
	switch e.Form {
	case FormExpense:
		e.PreventDefault()
		values, ok := c.creation.begin()
		if !ok {
			return
		}
		c.spawn(ctx, func(tctx context.Context) Event {
			return c.creation.send(tctx, values)
		})
	case FormFilter:
		e.PreventDefault()
		c.load(ctx, Query(c.picker))
	}
}

func (c *PageController) applyCreate(ctx context.Context, r *createResult) {
	if err := c.creation.finish(ctx, r); err != nil {
		c.notify(ctx, LevelError, msgCreateFailed+": "+messageFor(err), nil)
		return
	}
	c.load(ctx, c.query)
}

func (c *PageController) notify(ctx context.Context, level Level, msg string, key *FieldKey) {
	if c.doc != nil {
		if box := c.doc.ByID(notifications); box != nil {
			box.SetText(msg)
		}
	}
	c.notifier.Notify(ctx, Notification{Level: level, Message: msg, Key: key})
}

func messageFor(err error) string {
	var (
		re *RequestError
		te *TransportError
	)
	switch {
	case errors.Is(err, core.ErrNotNumeric):
		return msgInvalidNumber
	case errors.As(err, &te):
		return msgOffline
	case errors.As(err, &re) && re.Status < 500 && re.Detail != "":
		return msgSaveFailed + ": " + re.Detail
	}
	return msgSaveFailed
}

type inspect struct {
	fn   func()
	done chan struct{}
}

func (*loadResult) event()   {}
func (*patchResult) event()  {}
func (*createResult) event() {}
func (*resyncResult) event() {}
func (*inspect) event()      {}

// do runs fn on the loop and waits for it.
func (c *PageController) do(ctx context.Context, fn func()) error {
	ev := &inspect{fn: fn, done: make(chan struct{})}
	c.Dispatch(ev)
	select {
	case <-ev.done:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tracker counts outstanding events and tasks.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

func (t *tracker) wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		return closed
	}
	return t.idle
}
