package webui

import (
	"context"
	"net/url"

	"chitieu/internal/log"
)

// CreationController submits the new-expense form. On success the page is
// reloaded; on failure the form keeps what the user typed.
type CreationController struct {
	client *Client
	logger *log.Logger
	form   *Element
	// pending blocks a second submit while one is in flight.
	pending bool
}

type createResult struct {
	record Record
	err    error
}

func (cc *CreationController) bind(form *Element) {
	cc.form = form
	cc.pending = false
}

// Bound reports whether the page has a creation form.
func (cc *CreationController) Bound() bool { return cc.form != nil }

// begin snapshots the form for sending.
func (cc *CreationController) begin() (url.Values, bool) {
	if cc.form == nil || cc.pending {
		return nil, false
	}
	cc.pending = true
	return cc.form.FormValues(), true
}

// send runs off the loop.
func (cc *CreationController) send(ctx context.Context, form url.Values) Event {
	rec, err := cc.client.CreateExpense(ctx, form)
	return &createResult{record: rec, err: err}
}

func (cc *CreationController) finish(ctx context.Context, r *createResult) error {
	cc.pending = false
	if r.err != nil {
		cc.logger.WarnContext(ctx, "Create expense failed",
			log.FieldOperation, log.OpCreate,
			log.FieldError, r.err)
		return r.err
	}
	cc.logger.InfoContext(ctx, "Expense created",
		log.FieldOperation, log.OpCreate,
		log.FieldExpenseID, r.record.ID())
	return nil
}
