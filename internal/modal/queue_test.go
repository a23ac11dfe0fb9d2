package modal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type countingGate struct {
	mu        sync.Mutex
	suspended int
	releases  int
}

func (g *countingGate) Suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suspended++
}

func (g *countingGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.suspended--
	g.releases++
}

func (g *countingGate) level() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

type recordingPresenter struct {
	prompts chan Prompt
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{prompts: make(chan Prompt, 16)}
}

func (p *recordingPresenter) Present(_ context.Context, prompt Prompt) {
	p.prompts <- prompt
}

func (p *recordingPresenter) next(t *testing.T) Prompt {
	t.Helper()
	select {
	case prompt := <-p.prompts:
		return prompt
	case <-time.After(2 * time.Second):
		t.Fatalf("no prompt presented")
		return Prompt{}
	}
}

func startQueue(t *testing.T, cfg Config, gate Gate, presenter Presenter) *Queue {
	t.Helper()
	q := New(cfg, gate, presenter, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q
}

func TestRequestsResolveInSubmissionOrder(t *testing.T) {
	gate := &countingGate{}
	presenter := newRecordingPresenter()
	q := New(Config{}, gate, presenter, nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(Result) {
		return func(Result) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	q.Acknowledge("R1", "", record("R1"))
	q.Confirm("R2", "", record("R2"))
	q.Acknowledge("R3", "", record("R3"))
	if gate.level() != 1 {
		t.Fatalf("gate level=%d want 1 after enqueue", gate.level())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	for _, want := range []string{"R1", "R2", "R3"} {
		p := presenter.next(t)
		if p.Title != want {
			t.Fatalf("presented %q want %q", p.Title, want)
		}
		if gate.level() != 1 {
			t.Fatalf("gate released while %s outstanding", want)
		}
		if err := q.Respond(p.ID, true); err != nil {
			t.Fatalf("respond %s: %v", want, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for gate.level() != 0 {
		select {
		case <-deadline:
			t.Fatalf("gate never released")
		case <-time.After(time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "R1" || order[1] != "R2" || order[2] != "R3" {
		t.Fatalf("resolution order %v", order)
	}
	if gate.releases != 1 {
		t.Fatalf("releases=%d want 1", gate.releases)
	}
}

func TestAskReturnsAnswer(t *testing.T) {
	presenter := PresenterFunc(nil)
	var q *Queue
	presenter = func(_ context.Context, p Prompt) {
		go func() { _ = q.Respond(p.ID, false) }()
	}
	q = startQueue(t, Config{}, &countingGate{}, presenter)

	ok, err := q.Ask(context.Background(), "Buy?", "Buy 10 shares")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ok {
		t.Fatalf("expected decline")
	}
}

func TestRespondRejectsQueuedAndUnknown(t *testing.T) {
	presenter := newRecordingPresenter()
	q := startQueue(t, Config{}, &countingGate{}, presenter)

	q.Acknowledge("first", "", nil)
	second := q.Acknowledge("second", "", nil)
	first := presenter.next(t)

	if err := q.Respond(second, true); !errors.Is(err, ErrNotActive) {
		t.Fatalf("queued respond: %v", err)
	}
	if err := q.Respond(uuid.New(), true); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("unknown respond: %v", err)
	}
	if err := q.Respond(first.ID, true); err != nil {
		t.Fatalf("respond: %v", err)
	}
}

func TestTimeoutDeclinesConfirm(t *testing.T) {
	gate := &countingGate{}
	q := startQueue(t, Config{Timeout: 10 * time.Millisecond}, gate, nil)

	ok, err := q.Ask(context.Background(), "Sell?", "")
	if !errors.Is(err, ErrTimeout) || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestCancelPendingRequest(t *testing.T) {
	gate := &countingGate{}
	q := New(Config{}, gate, nil, nil)

	got := make(chan Result, 1)
	id := q.Confirm("later", "", func(r Result) { got <- r })
	if err := q.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	r := <-got
	if !errors.Is(r.Err, ErrCanceled) || r.Confirmed {
		t.Fatalf("result %+v", r)
	}
	if gate.level() != 0 || q.Len() != 0 {
		t.Fatalf("gate=%d len=%d after cancel", gate.level(), q.Len())
	}
}

func TestCloseResolvesEverything(t *testing.T) {
	gate := &countingGate{}
	q := New(Config{}, gate, nil, nil)

	results := make(chan Result, 2)
	q.Confirm("a", "", func(r Result) { results <- r })
	q.Acknowledge("b", "", func(r Result) { results <- r })
	q.Close()

	for i := 0; i < 2; i++ {
		if r := <-results; !errors.Is(r.Err, ErrClosed) {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	if gate.level() != 0 {
		t.Fatalf("gate still held after close")
	}

	q.Acknowledge("late", "", func(r Result) { results <- r })
	select {
	case r := <-results:
		if !errors.Is(r.Err, ErrClosed) {
			t.Fatalf("late result %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("late request never resolved")
	}
}
