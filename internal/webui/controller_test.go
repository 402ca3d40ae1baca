package webui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chitieu/internal/auth"
	"chitieu/internal/core"
	"chitieu/internal/format"
	apphttp "chitieu/internal/http"
	"chitieu/internal/middleware/ratelimit"
	"chitieu/internal/services"
	"chitieu/internal/storage"
)

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, core.Location)

const (
	patchPass int32 = iota
	patchAbort
	patchNoField
	patchAdjust
)

type harness struct {
	t     *testing.T
	svc   *services.ExpenseService
	pc    *PageController
	notes *Recorder

	mu     sync.Mutex
	counts map[string]int

	hold       atomic.Pointer[chan struct{}]
	patchMode  atomic.Int32
	failCreate atomic.Bool
	failGet    atomic.Bool
}

var (
	amountKey = FieldKey{ExpenseID: 1, Field: core.FieldAmount}
	descKey   = FieldKey{ExpenseID: 1, Field: core.FieldDescription}
	catKey    = FieldKey{ExpenseID: 1, Field: core.FieldCategory}
)

func newHarness(t *testing.T, configure ...func(*Options, *Client)) *harness {
	t.Helper()
	h := &harness{t: t, notes: &Recorder{}, counts: make(map[string]int)}

	h.svc = services.NewExpenseService(storage.NewMemoryRepository(), nil, services.Options{
		Now: func() time.Time { return testNow },
	})
	sessions := auth.NewManager("webui-test-secret-0123456789", time.Hour, false)
	srv := apphttp.NewServer(":0", h.svc, apphttp.Options{
		Sessions:  sessions,
		RateLimit: ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000},
	})
	ts := httptest.NewServer(h.wrap(srv.Handler))
	t.Cleanup(func() {
		if ch := h.hold.Load(); ch != nil {
			select {
			case <-*ch:
			default:
				close(*ch)
			}
		}
		ts.Close()
		srv.StopBackground()
	})

	if _, err := h.svc.Create(context.Background(), 1, services.NewExpense{
		Amount: "100000", Description: "Cà phê", Category: "food", Date: "2026-10-14 08:30:00",
	}); err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Login(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	opts := Options{Notifier: h.notes, Now: func() time.Time { return testNow }}
	for _, fn := range configure {
		fn(&opts, client)
	}
	h.pc = NewPageController(client, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.pc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h.dispatch(&Navigate{})
	h.settle()
	return h
}

func (h *harness) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.counts[r.Method+" "+r.URL.Path]++
		h.mu.Unlock()

		switch {
		case r.Method == http.MethodPatch:
			if ch := h.hold.Load(); ch != nil {
				<-*ch
			}
			switch h.patchMode.Load() {
			case patchAbort:
				panic(http.ErrAbortHandler)
			case patchNoField:
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": 1}`))
				return
			case patchAdjust:
				// A server that stores a different amount than it was sent.
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": 1, "amount": 150001}`))
				return
			}
		case r.Method == http.MethodPost && r.URL.Path == "/api/expenses" && h.failCreate.Load():
			apphttp.InternalServerError().Write(w)
			return
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/expenses/") && h.failGet.Load():
			apphttp.InternalServerError().Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *harness) count(method, path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[method+" "+path]
}

func (h *harness) patches() int { return h.count(http.MethodPatch, "/api/expenses/1/field") }

func (h *harness) reloads() int { return h.count(http.MethodGet, "/") }

func (h *harness) dispatch(evs ...Event) {
	for _, ev := range evs {
		h.pc.Dispatch(ev)
	}
}

func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.pc.Settle(ctx); err != nil {
		h.t.Fatalf("settle: %v", err)
	}
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) text(key FieldKey) string {
	h.t.Helper()
	text, err := h.pc.FieldText(h.ctx(), key)
	if err != nil {
		h.t.Fatalf("field %s: %v", key, err)
	}
	return text
}

func (h *harness) session(key FieldKey) FieldEditSession {
	h.t.Helper()
	s, ok, err := h.pc.Session(h.ctx(), key)
	if err != nil || !ok {
		h.t.Fatalf("session %s: ok=%v err=%v", key, ok, err)
	}
	return s
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	snap, err := h.pc.Snapshot(h.ctx())
	if err != nil {
		h.t.Fatal(err)
	}
	return snap
}

// holdPatches makes PATCH requests wait until the returned func is called.
func (h *harness) holdPatches() (release func()) {
	ch := make(chan struct{})
	h.hold.Store(&ch)
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (h *harness) edit(key FieldKey, text string) {
	h.dispatch(&Focus{Key: key}, &Input{Key: key, Text: text}, &Blur{Key: key})
}

func TestPageReadyFormatsDisplay(t *testing.T) {
	h := newHarness(t)
	snap := h.snapshot()

	if snap.Total != "100.000"+format.SymbolSeparator+"₫" {
		t.Errorf("total = %q", snap.Total)
	}
	if !strings.HasSuffix(snap.AvgPerDay, format.SymbolSeparator+"₫") {
		t.Errorf("avg per day = %q", snap.AvgPerDay)
	}
	if snap.Range != "01/10/2026 - 31/10/2026" {
		t.Errorf("range = %q", snap.Range)
	}
	if len(snap.Rows) != 1 {
		t.Fatalf("rows = %+v", snap.Rows)
	}
	want := Row{ID: 1, Date: "14 tháng 10, 2026 08:30", Description: "Cà phê", Category: "food", Amount: "100.000"}
	if snap.Rows[0] != want {
		t.Errorf("row = %+v, want %+v", snap.Rows[0], want)
	}

	// Formatting again must not touch already formatted elements.
	if err := h.pc.do(h.ctx(), h.pc.pageReady); err != nil {
		t.Fatal(err)
	}
	if again := h.snapshot(); again.Total != snap.Total || again.Rows[0] != snap.Rows[0] {
		t.Errorf("second format pass changed the page: %+v", again)
	}
}

func TestEditAmountConfirmed(t *testing.T) {
	h := newHarness(t)
	if got := h.text(amountKey); got != "100.000" {
		t.Fatalf("initial amount = %q", got)
	}

	h.edit(amountKey, "150000")
	h.settle()

	if got := h.text(amountKey); got != "150.000" {
		t.Errorf("amount = %q, want 150.000", got)
	}
	s := h.session(amountKey)
	if s.Status != Confirmed || s.Coerced == nil || s.Coerced.Number != 150000 {
		t.Errorf("session = %+v", s)
	}
	if h.patches() != 1 {
		t.Errorf("patches = %d", h.patches())
	}
	e, err := h.svc.Get(context.Background(), 1, 1)
	if err != nil || e.Amount.Dong != 150000 {
		t.Errorf("stored = %+v, %v", e, err)
	}
	if n := h.notes.Notifications(); len(n) != 0 {
		t.Errorf("notifications = %+v", n)
	}
}

func TestConfirmedTextComesFromServer(t *testing.T) {
	h := newHarness(t)
	h.edit(descKey, "  Bạc   xỉu ")
	h.settle()

	e, err := h.svc.Get(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.text(descKey); got != e.Description {
		t.Errorf("displayed %q, stored %q", got, e.Description)
	}
	if h.session(descKey).Status != Confirmed {
		t.Error("not confirmed")
	}
}

func TestConfirmedAmountShowsServerValue(t *testing.T) {
	h := newHarness(t)
	h.patchMode.Store(patchAdjust)

	h.edit(amountKey, "150.000")
	h.settle()

	s := h.session(amountKey)
	if s.Status != Confirmed || s.Coerced == nil || s.Coerced.Number != 150000 {
		t.Fatalf("session = %+v", s)
	}
	if got := h.text(amountKey); got != "150.001" {
		t.Errorf("amount = %q, want the server's 150.001", got)
	}
}

func TestCoercionFailureSendsNothing(t *testing.T) {
	h := newHarness(t)
	before := h.reloads()

	h.edit(amountKey, "abc")
	h.settle()

	if h.patches() != 0 {
		t.Errorf("patches = %d, want 0", h.patches())
	}
	if got := h.reloads() - before; got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
	notes := h.notes.Notifications()
	if len(notes) != 1 || notes[0].Level != LevelError || notes[0].Message != msgInvalidNumber {
		t.Errorf("notifications = %+v", notes)
	}
	if got := h.text(amountKey); got != "100.000" {
		t.Errorf("amount after resync = %q", got)
	}
	if snap := h.snapshot(); snap.Resyncs != 1 || snap.Generation != 2 {
		t.Errorf("resyncs = %d generation = %d", snap.Resyncs, snap.Generation)
	}
}

// gatedResyncer blocks every resync until released and counts them.
type gatedResyncer struct {
	next    Resyncer
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	err     error
}

func (g *gatedResyncer) Resync(ctx context.Context, t Target) (Outcome, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	if g.err != nil {
		return Outcome{}, g.err
	}
	return g.next.Resync(ctx, t)
}

func TestSupersededResyncFailureIsQuiet(t *testing.T) {
	gate := &gatedResyncer{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
		err:     errors.New("connection reset"),
	}
	h := newHarness(t, func(o *Options, _ *Client) { o.Resyncer = gate })
	start := h.snapshot().Generation

	h.edit(amountKey, "abc")
	<-gate.entered

	// A navigation replaces the page while the resync is still out.
	h.dispatch(&Navigate{})
	deadline := time.Now().Add(5 * time.Second)
	for h.snapshot().Generation == start {
		if time.Now().After(deadline) {
			t.Fatal("navigation never replaced the page")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(gate.release)
	h.settle()

	for _, n := range h.notes.Notifications() {
		if n.Message == msgReloadFailed {
			t.Errorf("superseded resync notified %q", n.Message)
		}
	}
	if got := h.snapshot().Notification; got == msgReloadFailed {
		t.Errorf("page shows %q", got)
	}
}

func TestServerRejectionResyncsOnceWithoutMutation(t *testing.T) {
	gate := &gatedResyncer{entered: make(chan struct{}, 4), release: make(chan struct{})}
	h := newHarness(t, func(o *Options, c *Client) {
		gate.next = FullReload{Client: c}
		o.Resyncer = gate
	})

	h.edit(descKey, "   ")
	<-gate.entered

	s := h.session(descKey)
	if s.Status != Failed {
		t.Fatalf("status = %s", s.Status)
	}
	var re *RequestError
	if !errors.As(s.Err, &re) || re.Status != http.StatusUnprocessableEntity {
		t.Errorf("err = %v", s.Err)
	}
	// Until the resync lands the cell shows exactly what was typed.
	if got := h.text(descKey); got != "   " {
		t.Errorf("cell mutated before resync: %q", got)
	}

	close(gate.release)
	h.settle()

	if gate.calls.Load() != 1 {
		t.Errorf("resync calls = %d", gate.calls.Load())
	}
	if got := h.text(descKey); got != "Cà phê" {
		t.Errorf("description after resync = %q", got)
	}
	if notes := h.notes.Notifications(); len(notes) != 1 || !strings.HasPrefix(notes[0].Message, msgSaveFailed) {
		t.Errorf("notifications = %+v", notes)
	}
}

func TestTransportFailureResyncs(t *testing.T) {
	h := newHarness(t)
	h.patchMode.Store(patchAbort)
	before := h.reloads()

	h.edit(amountKey, "200000")
	h.settle()

	notes := h.notes.Notifications()
	if len(notes) != 1 || notes[0].Message != msgOffline {
		t.Errorf("notifications = %+v", notes)
	}
	if got := h.reloads() - before; got != 1 {
		t.Errorf("reloads = %d", got)
	}
	if got := h.text(amountKey); got != "100.000" {
		t.Errorf("amount = %q", got)
	}
}

func TestResponseWithoutFieldFails(t *testing.T) {
	h := newHarness(t)
	h.patchMode.Store(patchNoField)

	h.edit(amountKey, "200000")
	h.settle()

	// The generation moved on, so the failed session was replaced.
	if _, ok, _ := h.pc.Session(h.ctx(), amountKey); ok {
		t.Error("sessions survived the reload")
	}
	if len(h.notes.Notifications()) != 1 {
		t.Errorf("notifications = %+v", h.notes.Notifications())
	}
	if snap := h.snapshot(); snap.Resyncs != 1 {
		t.Errorf("resyncs = %d", snap.Resyncs)
	}
}

func TestStaleConfirmationDiscarded(t *testing.T) {
	h := newHarness(t)
	release := h.holdPatches()

	h.edit(amountKey, "111")
	if s := h.session(amountKey); s.Status != Submitting || s.Version != 1 {
		t.Fatalf("first session = %+v", s)
	}
	h.dispatch(&Focus{Key: amountKey}, &Input{Key: amountKey, Text: "222"})
	if s := h.session(amountKey); s.Version != 2 {
		t.Fatalf("second session version = %d", s.Version)
	}

	release()
	h.settle()

	if got := h.text(amountKey); got != "222" {
		t.Errorf("stale result overwrote newer input: %q", got)
	}
	if s := h.session(amountKey); s.Status != Editing {
		t.Errorf("latest session = %s", s.Status)
	}

	h.dispatch(&Blur{Key: amountKey})
	h.settle()
	if got := h.text(amountKey); got != "222" {
		t.Errorf("amount = %q", got)
	}
	if h.session(amountKey).Status != Confirmed {
		t.Error("second edit not confirmed")
	}
}

func TestResultFromAbandonedPageIgnored(t *testing.T) {
	h := newHarness(t)
	release := h.holdPatches()

	h.edit(amountKey, "150000")
	h.dispatch(&Navigate{})
	deadline := time.Now().Add(5 * time.Second)
	for h.snapshot().Generation < 2 {
		if time.Now().After(deadline) {
			t.Fatal("reload never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	release()
	h.settle()

	if got := h.text(amountKey); got != "100.000" {
		t.Errorf("result applied to the new page: %q", got)
	}
	if len(h.notes.Notifications()) != 0 {
		t.Errorf("notifications = %+v", h.notes.Notifications())
	}
}

func TestEnterCommitsWithoutNewline(t *testing.T) {
	h := newHarness(t)
	enter := &KeyDown{Key: descKey, Name: "Enter"}
	h.dispatch(&Focus{Key: descKey}, &Input{Key: descKey, Text: "Trà đá"}, enter)
	h.settle()

	if !enter.DefaultPrevented() {
		t.Error("Enter was not default-prevented")
	}
	if got := h.text(descKey); got != "Trà đá" || strings.Contains(got, "\n") {
		t.Errorf("description = %q", got)
	}
	if h.patches() != 1 {
		t.Errorf("patches = %d", h.patches())
	}

	// The blur that follows in a browser must not submit again.
	h.dispatch(&Blur{Key: descKey})
	h.settle()
	if h.patches() != 1 {
		t.Errorf("patches after blur = %d", h.patches())
	}
}

func TestBlurWithoutInputSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&Focus{Key: amountKey}, &Blur{Key: amountKey})
	h.settle()
	if h.patches() != 0 {
		t.Errorf("patches = %d", h.patches())
	}
	if _, ok, _ := h.pc.Session(h.ctx(), amountKey); ok {
		t.Error("session kept after an empty edit")
	}
}

func TestCategoryChange(t *testing.T) {
	h := newHarness(t)
	h.dispatch(&Focus{Key: catKey}, &Change{Key: catKey, Value: "transport"})
	h.settle()

	if got := h.text(catKey); got != "transport" {
		t.Errorf("category = %q", got)
	}
	e, _ := h.svc.Get(context.Background(), 1, 1)
	if e.Category != "transport" {
		t.Errorf("stored category = %q", e.Category)
	}
}

func fillForm(h *harness) {
	for name, value := range map[string]string{
		"amount":      "45000",
		"description": "Phở bò",
		"category":    "food",
		"date":        "2026-10-15T07:45",
	} {
		h.dispatch(&SetFormField{Form: FormExpense, Name: name, Value: value})
	}
}

func TestCreateReloadsPage(t *testing.T) {
	h := newHarness(t)
	before := h.reloads()
	fillForm(h)
	submit := &Submit{Form: FormExpense}
	h.dispatch(submit)
	h.settle()

	if !submit.DefaultPrevented() {
		t.Error("submit not default-prevented")
	}
	if h.count(http.MethodPost, "/api/expenses") != 1 {
		t.Errorf("posts = %d", h.count(http.MethodPost, "/api/expenses"))
	}
	if got := h.reloads() - before; got != 1 {
		t.Errorf("reloads = %d", got)
	}
	snap := h.snapshot()
	if len(snap.Rows) != 2 || snap.Rows[0].Amount != "45.000" || snap.Rows[0].Description != "Phở bò" {
		t.Errorf("rows = %+v", snap.Rows)
	}
	if snap.Total != "145.000"+format.SymbolSeparator+"₫" {
		t.Errorf("total = %q", snap.Total)
	}
}

func TestCreateFailureKeepsForm(t *testing.T) {
	h := newHarness(t)
	h.failCreate.Store(true)
	before := h.reloads()
	fillForm(h)
	h.dispatch(&Submit{Form: FormExpense})
	h.settle()

	if got := h.reloads() - before; got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
	snap := h.snapshot()
	if snap.Form.Get("amount") != "45000" || snap.Form.Get("description") != "Phở bò" || snap.Form.Get("date") != "2026-10-15T07:45" {
		t.Errorf("form = %v", snap.Form)
	}
	notes := h.notes.Notifications()
	if len(notes) != 1 || !strings.HasPrefix(notes[0].Message, msgCreateFailed) {
		t.Errorf("notifications = %+v", notes)
	}
	if snap.Notification == "" {
		t.Error("notification not shown on the page")
	}
}

func TestFilterSubmitNavigates(t *testing.T) {
	h := newHarness(t)
	submit := &Submit{Form: FormFilter}
	h.dispatch(&PickPreset{Key: "last_month"}, submit)
	h.settle()

	if !submit.DefaultPrevented() {
		t.Error("filter submit not default-prevented")
	}
	snap := h.snapshot()
	if snap.Query.Get("start") != "2026-09-01" || snap.Query.Get("end") != "2026-09-30" {
		t.Errorf("query = %v", snap.Query)
	}
	if snap.Range != "01/09/2026 - 30/09/2026" || len(snap.Rows) != 0 {
		t.Errorf("range = %q rows = %d", snap.Range, len(snap.Rows))
	}

	// A reload keeps the filter.
	before := h.reloads()
	h.dispatch(&Navigate{})
	h.settle()
	if q := h.snapshot().Query; q.Get("start") != "2026-09-01" || h.reloads() != before+1 {
		t.Errorf("query after reload = %v", q)
	}
}

func TestRecordRefresh(t *testing.T) {
	h := newHarness(t, func(o *Options, c *Client) { o.Resyncer = NewRecordRefresh(c) })
	before := h.reloads()

	h.edit(amountKey, "abc")
	h.settle()

	if h.count(http.MethodGet, "/api/expenses/1") != 1 {
		t.Errorf("record fetches = %d", h.count(http.MethodGet, "/api/expenses/1"))
	}
	if got := h.reloads() - before; got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
	if got := h.text(amountKey); got != "100.000" {
		t.Errorf("amount = %q", got)
	}
	if snap := h.snapshot(); snap.Generation != 1 {
		t.Errorf("generation = %d", snap.Generation)
	}
}

func TestRecordRefreshFallsBackToReload(t *testing.T) {
	h := newHarness(t, func(o *Options, c *Client) { o.Resyncer = NewRecordRefresh(c) })
	h.failGet.Store(true)
	before := h.reloads()

	h.edit(amountKey, "abc")
	h.settle()

	if got := h.reloads() - before; got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
	if got := h.text(amountKey); got != "100.000" {
		t.Errorf("amount = %q", got)
	}
}
