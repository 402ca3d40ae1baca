package webui

import (
	"context"
	"net/url"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Target describes what a resync must bring back in line with the server.
type Target struct {
	// Key is the field whose edit failed. The zero key means the whole page.
	Key FieldKey
	// Query is the filter of the page currently shown.
	Query url.Values
}

// Outcome is the fresh server state. Exactly one of Document and Record
// is set.
type Outcome struct {
	Document *Document
	Record   Record
}

// Resyncer re-reads server state after a failed edit. Resync runs outside
// the event loop.
type Resyncer interface {
	Resync(ctx context.Context, t Target) (Outcome, error)
}

// FullReload re-fetches and re-parses the whole page.
type FullReload struct {
	Client *Client
}

func (r FullReload) Resync(ctx context.Context, t Target) (Outcome, error) {
	doc, err := r.Client.LoadPage(ctx, t.Query)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Document: doc}, nil
}

// RecordRefresh re-fetches only the affected expense. Concurrent refreshes
// of one record share a request. Any failure, and page-wide targets, fall
// back to a full reload.
type RecordRefresh struct {
	client   *Client
	fallback Resyncer
	group    singleflight.Group
}

func NewRecordRefresh(client *Client) *RecordRefresh {
	return &RecordRefresh{client: client, fallback: FullReload{Client: client}}
}

func (r *RecordRefresh) Resync(ctx context.Context, t Target) (Outcome, error) {
	if t.Key.ExpenseID <= 0 {
		return r.fallback.Resync(ctx, t)
	}
	v, err, _ := r.group.Do(strconv.FormatInt(t.Key.ExpenseID, 10), func() (any, error) {
		return r.client.GetExpense(ctx, t.Key.ExpenseID)
	})
	if err != nil {
		return r.fallback.Resync(ctx, t)
	}
	return Outcome{Record: v.(Record)}, nil
}
