package modal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("modal queue closed")
	ErrTimeout        = errors.New("modal request timed out")
	ErrCanceled       = errors.New("modal request canceled")
	ErrUnknownRequest = errors.New("unknown modal request")
	ErrNotActive      = errors.New("modal request is queued but not active")
)

type Kind int

const (
	KindAcknowledge Kind = iota
	KindConfirm
)

func (k Kind) String() string {
	if k == KindConfirm {
		return "confirm"
	}
	return "acknowledge"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "confirm":
		*k = KindConfirm
	case "acknowledge":
		*k = KindAcknowledge
	default:
		return fmt.Errorf("unknown modal kind %q", b)
	}
	return nil
}

type Prompt struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Result is what a completion callback receives. Confirmed is false for a
// Confirm that was declined, timed out or dropped.
type Result struct {
	Confirmed bool
	Err       error
}

// Presenter shows the active prompt. It must return promptly; the answer
// arrives later through Queue.Respond.
type Presenter interface {
	Present(ctx context.Context, p Prompt)
}

type PresenterFunc func(ctx context.Context, p Prompt)

func (f PresenterFunc) Present(ctx context.Context, p Prompt) {
	f(ctx, p)
}

// Gate is suspended while the queue holds any request.
type Gate interface {
	Suspend()
	Release()
}

type Config struct {
	Timeout time.Duration
}

type request struct {
	Prompt
	reply chan Result
	done  func(Result)
}

type Queue struct {
	cfg       Config
	log       *slog.Logger
	gate      Gate
	presenter Presenter

	mu       sync.Mutex
	pending  []*request
	active   *request
	held     bool
	isClosed bool
	depthFns []func(int)

	wake      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, gate Gate, presenter Presenter, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:       cfg,
		log:       logger,
		gate:      gate,
		presenter: presenter,
		wake:      make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// OnDepth registers fn to receive the number of outstanding requests after
// every change.
func (q *Queue) OnDepth(fn func(int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.depthFns = append(q.depthFns, fn)
}

func (q *Queue) Acknowledge(title, message string, done func(Result)) uuid.UUID {
	return q.enqueue(KindAcknowledge, title, message, done)
}

func (q *Queue) Confirm(title, message string, done func(Result)) uuid.UUID {
	return q.enqueue(KindConfirm, title, message, done)
}

// Ask enqueues a confirm and waits for its answer. Canceling ctx withdraws the
// request. Never call it from inside the clock's exclusive section.
func (q *Queue) Ask(ctx context.Context, title, message string) (bool, error) {
	ch := make(chan Result, 1)
	id := q.Confirm(title, message, func(r Result) { ch <- r })
	select {
	case r := <-ch:
		return r.Confirmed, r.Err
	case <-ctx.Done():
		_ = q.Cancel(id)
		r := <-ch
		if r.Err == nil {
			return r.Confirmed, nil
		}
		return false, ctx.Err()
	}
}

func (q *Queue) enqueue(kind Kind, title, message string, done func(Result)) uuid.UUID {
	req := &request{
		Prompt: Prompt{
			ID:         uuid.New(),
			Kind:       kind,
			Title:      title,
			Message:    message,
			EnqueuedAt: time.Now().UTC(),
		},
		reply: make(chan Result, 1),
		done:  done,
	}

	q.mu.Lock()
	if q.isClosed {
		q.mu.Unlock()
		// the caller may hold the clock's exclusive section
		go q.complete(req, Result{Err: ErrClosed})
		return req.ID
	}
	q.pending = append(q.pending, req)
	if !q.held {
		q.held = true
		if q.gate != nil {
			q.gate.Suspend()
		}
	}
	depth, fns := q.depthLocked()
	q.mu.Unlock()

	notifyDepth(fns, depth)
	q.signal()
	return req.ID
}

// Respond answers the active request. Acknowledge requests ignore answer.
func (q *Queue) Respond(id uuid.UUID, answer bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil || q.active.ID != id {
		for _, r := range q.pending {
			if r.ID == id {
				return ErrNotActive
			}
		}
		return ErrUnknownRequest
	}
	res := Result{Confirmed: answer}
	if q.active.Kind == KindAcknowledge {
		res.Confirmed = true
	}
	select {
	case q.active.reply <- res:
		return nil
	default:
		return ErrUnknownRequest
	}
}

// Cancel withdraws a queued request or dismisses the active one. Either way the
// request resolves with ErrCanceled.
func (q *Queue) Cancel(id uuid.UUID) error {
	q.mu.Lock()
	if q.active != nil && q.active.ID == id {
		select {
		case q.active.reply <- Result{Err: ErrCanceled}:
		default:
		}
		q.mu.Unlock()
		return nil
	}
	for i, r := range q.pending {
		if r.ID != id {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.releaseIfDrainedLocked()
		depth, fns := q.depthLocked()
		q.mu.Unlock()
		notifyDepth(fns, depth)
		q.complete(r, Result{Err: ErrCanceled})
		return nil
	}
	q.mu.Unlock()
	return ErrUnknownRequest
}

func (q *Queue) Active() (Prompt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return Prompt{}, false
	}
	return q.active.Prompt, true
}

func (q *Queue) Pending() []Prompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Prompt, 0, len(q.pending))
	for _, r := range q.pending {
		out = append(out, r.Prompt)
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n, _ := q.depthLocked()
	return n
}

// Run presents requests one at a time until ctx is done or the queue is
// closed. Remaining requests are resolved with ErrClosed on exit.
func (q *Queue) Run(ctx context.Context) error {
	defer q.Close()
	for {
		req, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.closed:
				return nil
			case <-q.wake:
			}
			continue
		}
		res := q.await(ctx, req)
		q.finish(req, res)
	}
}

func (q *Queue) next() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != nil || len(q.pending) == 0 {
		return nil, false
	}
	q.active = q.pending[0]
	q.pending = q.pending[1:]
	return q.active, true
}

func (q *Queue) await(ctx context.Context, req *request) Result {
	if q.presenter != nil {
		q.presenter.Present(ctx, req.Prompt)
	}

	var timeout <-chan time.Time
	if q.cfg.Timeout > 0 {
		timer := time.NewTimer(q.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-req.reply:
		return res
	case <-timeout:
		q.log.Warn("modal request timed out", "modal_id", req.ID, "title", req.Title, "kind", req.Kind.String())
		return Result{Confirmed: req.Kind == KindAcknowledge, Err: ErrTimeout}
	case <-ctx.Done():
		return Result{Err: ErrClosed}
	case <-q.closed:
		return Result{Err: ErrClosed}
	}
}

// finish runs the completion callback before the gate is released so its
// effect lands before the next tick.
func (q *Queue) finish(req *request, res Result) {
	q.complete(req, res)

	q.mu.Lock()
	q.active = nil
	q.releaseIfDrainedLocked()
	depth, fns := q.depthLocked()
	q.mu.Unlock()
	notifyDepth(fns, depth)
}

func (q *Queue) complete(req *request, res Result) {
	if req.done == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("modal callback panicked", "modal_id", req.ID, "panic", r)
		}
	}()
	req.done(res)
}

// Close resolves every outstanding request with ErrClosed and releases the gate.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)

		q.mu.Lock()
		q.isClosed = true
		dropped := q.pending
		q.pending = nil
		if q.active == nil {
			q.releaseIfDrainedLocked()
		}
		depth, fns := q.depthLocked()
		q.mu.Unlock()

		notifyDepth(fns, depth)
		for _, r := range dropped {
			q.complete(r, Result{Err: ErrClosed})
		}
	})
}

func (q *Queue) releaseIfDrainedLocked() {
	if !q.held || len(q.pending) > 0 || q.active != nil {
		return
	}
	q.held = false
	if q.gate != nil {
		q.gate.Release()
	}
}

func (q *Queue) depthLocked() (int, []func(int)) {
	n := len(q.pending)
	if q.active != nil {
		n++
	}
	return n, q.depthFns
}

func notifyDepth(fns []func(int), depth int) {
	for _, fn := range fns {
		fn(depth)
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
