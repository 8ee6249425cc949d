// Package queue implements the durable write->crawl mailbox
// (SPEC_FULL.md §6 `queue.CrawlRequests`), so mutation operations enqueue a
// crawl request instead of recursively calling back into the Coordinator,
// per Design Notes §9 ("express it as a message to the Coordinator...not a
// recursive call, to avoid accidental reentry into the per-archive lock").
// A thin wrapper over maragu.dev/goqite, grounded on the teacher's
// queue.Manager (Enqueue/Receive/Delete, no business logic of its own).
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maragu.dev/goqite"
)

// ErrEmpty is returned by Receive when no crawl request is pending.
var ErrEmpty = errors.New("no crawl requests pending")

// Request is the sole payload enqueued onto the crawl-request mailbox: the
// origin to (re-)crawl.
type Request struct {
	Origin string `json:"origin"`
}

// CrawlRequests is the durable, at-least-once mailbox consumed interface
// named in SPEC_FULL.md §6.
type CrawlRequests interface {
	Enqueue(ctx context.Context, origin string) error
	// Receive pulls the next pending request. The returned ack func must
	// be called after the request is fully processed; failing to call it
	// lets goqite redeliver the message once its visibility timeout elapses.
	Receive(ctx context.Context) (*Request, func() error, error)
}

// GoqiteQueue is the CrawlRequests implementation backed by a goqite queue
// table in the shared index database.
type GoqiteQueue struct {
	q *goqite.Queue
}

// NewGoqiteQueue constructs a crawl-request mailbox named "crawl_requests"
// in db (the Index Store's connection; goqite.Setup is already applied by
// store/sqlite.Open).
func NewGoqiteQueue(db *sql.DB) (*GoqiteQueue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := goqite.Setup(ctx, db); err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, err
	}

	q := goqite.New(goqite.NewOpts{DB: db, Name: "crawl_requests"})
	return &GoqiteQueue{q: q}, nil
}

// Enqueue sends a crawl request for origin.
func (g *GoqiteQueue) Enqueue(ctx context.Context, origin string) error {
	data, err := json.Marshal(Request{Origin: origin})
	if err != nil {
		return err
	}
	return g.q.Send(ctx, goqite.Message{Body: data})
}

// Receive pulls the next pending request, if any.
func (g *GoqiteQueue) Receive(ctx context.Context) (*Request, func() error, error) {
	msg, err := g.q.Receive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil {
		return nil, nil, ErrEmpty
	}

	var req Request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return nil, nil, err
	}

	ack := func() error {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.q.Delete(deleteCtx, msg.ID)
	}
	return &req, ack, nil
}

var _ CrawlRequests = (*GoqiteQueue)(nil)
