// Package retryqueue implements the daemon's FIFO retry queue (spec
// component C3): a single-worker flush loop with exponential backoff on
// transport failures and drop-on-semantic-failure semantics. Its shape
// is grounded on the same mutex-guarded, timer-driven pattern the teacher
// uses for its generic priority queue, but the contract here is strict
// FIFO with at-most-one in-flight worker rather than priority ordering.
package retryqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/collaborator-ai/seedvault-sub000/internal/seedsdk"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// Operation is the unit of work executed against the remote server.
// PutOp and DeleteOp implement it.
type Operation interface {
	// Execute performs the operation against client, returning nil on
	// success.
	Execute(ctx context.Context, client *seedsdk.Client) error
	// Describe returns a short human-readable label for status/log lines.
	Describe() string
}

// PutOp uploads content to a server path.
type PutOp struct {
	Username    string
	ServerPath  string
	Content     []byte
	OriginCtime *time.Time
	OriginMtime *time.Time
	EnqueuedAt  time.Time
}

func (o *PutOp) Execute(ctx context.Context, client *seedsdk.Client) error {
	return client.PutFile(ctx, o.Username, o.ServerPath, o.Content, seedsdk.PutFileOptions{
		OriginCtime: o.OriginCtime,
		OriginMtime: o.OriginMtime,
	})
}

func (o *PutOp) Describe() string {
	return fmt.Sprintf("put %s", o.ServerPath)
}

// DeleteOp deletes a server path.
type DeleteOp struct {
	Username   string
	ServerPath string
	EnqueuedAt time.Time
}

func (o *DeleteOp) Execute(ctx context.Context, client *seedsdk.Client) error {
	return client.DeleteFile(ctx, o.Username, o.ServerPath)
}

func (o *DeleteOp) Describe() string {
	return fmt.Sprintf("delete %s", o.ServerPath)
}

// StatusFunc receives a human-readable status line on every flush-end
// event ("all synced", a drop notice, or a retry notice). The queue never
// holds a back-reference to its owner; this callback is the only
// direction of communication outward, per Design Notes §9.
type StatusFunc func(message string)

// Queue is a FIFO of Operation with at-most-one worker. The queue is
// owned by a single syncer; callers construct one per syncer instance.
type Queue struct {
	client *seedsdk.Client
	status StatusFunc

	mu      sync.Mutex
	ops     []Operation
	timer   *time.Timer
	backoff time.Duration
	stopped bool
}

// New builds a Queue that executes operations against client and reports
// status via status.
func New(client *seedsdk.Client, status StatusFunc) *Queue {
	if status == nil {
		status = func(string) {}
	}
	return &Queue{
		client:  client,
		status:  status,
		backoff: initialBackoff,
	}
}

// Enqueue appends op to the tail of the queue and schedules an immediate
// flush if the worker is idle.
func (q *Queue) Enqueue(ctx context.Context, op Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}

	q.ops = append(q.ops, op)
	q.scheduleLocked(ctx, 0)
}

// Pending returns the current queue depth.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Stop cancels any pending flush timer. It does not abort an in-flight
// request; queued operations remain in memory until the owning syncer
// drops this Queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// scheduleLocked arranges for flush to run after delay. Must be called
// with q.mu held.
func (q *Queue) scheduleLocked(ctx context.Context, delay time.Duration) {
	if q.stopped || q.timer != nil || len(q.ops) == 0 {
		return
	}

	q.timer = time.AfterFunc(delay, func() {
		q.flush(ctx)
	})
}

// flush runs the single-worker drain loop: take the head op (without
// popping), execute it, and decide whether to pop-and-continue or stop
// and reschedule, per spec.md §4.3.
func (q *Queue) flush(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.timer = nil
			q.mu.Unlock()
			return
		}
		q.timer = nil
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.mu.Unlock()

		err := op.Execute(ctx, q.client)

		q.mu.Lock()
		if err == nil {
			q.ops = q.ops[1:]
			q.backoff = initialBackoff
			drained := len(q.ops) == 0
			q.mu.Unlock()
			if drained {
				q.status("all synced")
			}
			continue
		}

		var apiErr *seedsdk.ApiError
		if errors.As(err, &apiErr) && apiErr.IsSemantic() {
			q.ops = q.ops[1:]
			remaining := len(q.ops)
			q.mu.Unlock()
			q.status(fmt.Sprintf("dropping %s: status %d: %s", op.Describe(), apiErr.Status, apiErr.Message))
			if remaining == 0 {
				q.status("all synced")
			}
			continue
		}

		// Transport or 5xx failure: keep the op at the head, back off.
		delay := q.backoff
		q.backoff *= 2
		if q.backoff > maxBackoff {
			q.backoff = maxBackoff
		}
		pending := len(q.ops)
		q.scheduleLocked(ctx, delay)
		q.mu.Unlock()

		q.status(fmt.Sprintf("retry in %s: %d pending: %s", delay, pending, err))
		return
	}
}
