package outcome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"tycoon/internal/clock"
	"tycoon/internal/ledger"
	"tycoon/internal/modal"
	"tycoon/internal/notify"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type Result string

const (
	Victory Result = "victory"
	Defeat  Result = "defeat"
)

const (
	VictoryTitle = "VICTORY!"
	DefeatTitle  = "GAME OVER"
	defeatText   = "Your financial empire has crumbled. You ran out of liquid cash to cover your debts!"
)

type Standing interface {
	Snapshot() ledger.Snapshot
}

type Modal interface {
	Acknowledge(title, message string, done func(modal.Result)) uuid.UUID
}

type Executor interface {
	Exclusive(fn func())
}

type Config struct {
	WinTarget int64
}

func DefaultConfig() Config {
	return Config{WinTarget: 1_000_000}
}

type Verdict struct {
	Result   Result     `json:"result"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	NetWorth int64      `json:"net_worth"`
	At       clock.Time `json:"at"`
}

// Check applies the terminal conditions in order: victory first, then defeat.
func Check(s ledger.Snapshot, winTarget int64) (Result, bool) {
	switch {
	case s.NetWorth >= winTarget:
		return Victory, true
	case s.Debt > s.Cash:
		return Defeat, true
	default:
		return "", false
	}
}

func verdictFor(r Result, s ledger.Snapshot, winTarget int64, at clock.Time) Verdict {
	v := Verdict{Result: r, NetWorth: s.NetWorth, At: at}
	if r == Victory {
		v.Title = VictoryTitle
		v.Message = fmt.Sprintf("Congratulations! You've reached a net worth of $%s and built a financial empire!", humanize.Comma(winTarget))
	} else {
		v.Title = DefeatTitle
		v.Message = defeatText
	}
	return v
}

type Evaluator struct {
	cfg      Config
	log      *slog.Logger
	standing Standing
	modal    Modal
	exec     Executor
	bus      *notify.Bus

	mu      sync.Mutex
	ended   bool
	verdict *Verdict
	round   uint64
	onEnd   []func(Verdict)
}

func New(cfg Config, standing Standing, m Modal, exec Executor, bus *notify.Bus, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WinTarget <= 0 {
		cfg.WinTarget = DefaultConfig().WinTarget
	}
	return &Evaluator{cfg: cfg, log: logger, standing: standing, modal: m, exec: exec, bus: bus}
}

// OnEnd registers fn to run, inside the exclusive section, once the outcome
// message is acknowledged.
func (e *Evaluator) OnEnd(fn func(Verdict)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEnd = append(e.onEnd, fn)
}

func (e *Evaluator) WinTarget() int64 {
	return e.cfg.WinTarget
}

// OnTick is the tick phase. Conditions are only checked on week boundaries.
func (e *Evaluator) OnTick(_ context.Context, step clock.Step) error {
	if !step.NewWeek {
		return nil
	}
	e.Evaluate(step.Time)
	return nil
}

func (e *Evaluator) Evaluate(at clock.Time) (Verdict, bool) {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return Verdict{}, false
	}
	s := e.standing.Snapshot()
	r, done := Check(s, e.cfg.WinTarget)
	if !done {
		e.mu.Unlock()
		return Verdict{}, false
	}
	v := verdictFor(r, s, e.cfg.WinTarget, at)
	e.ended = true
	e.verdict = &v
	round := e.round
	e.mu.Unlock()

	e.log.Info("game ended", "outcome", string(v.Result), "net_worth", v.NetWorth, "at", at.String())
	if e.modal == nil {
		e.finish(v)
		return v, true
	}
	e.modal.Acknowledge(v.Title, v.Message, func(res modal.Result) {
		if errors.Is(res.Err, modal.ErrClosed) {
			return
		}
		finish := func() {
			e.mu.Lock()
			stale := e.round != round
			e.mu.Unlock()
			if stale {
				e.log.Info("outcome acknowledged after reset; ignored", "outcome", string(v.Result))
				return
			}
			e.finish(v)
		}
		if e.exec != nil {
			e.exec.Exclusive(finish)
			return
		}
		finish()
	})
	return v, true
}

func (e *Evaluator) finish(v Verdict) {
	if e.bus != nil {
		e.bus.GameEnded.Publish(notify.GameEnded{
			Outcome:  string(v.Result),
			Title:    v.Title,
			Message:  v.Message,
			NetWorth: v.NetWorth,
			At:       v.At,
		})
	}
	e.mu.Lock()
	fns := slices.Clone(e.onEnd)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (e *Evaluator) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *Evaluator) Verdict() (Verdict, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.verdict == nil {
		return Verdict{}, false
	}
	return *e.verdict, true
}

func (e *Evaluator) Reset() {
	e.mu.Lock()
	e.ended = false
	e.verdict = nil
	e.round++
	e.mu.Unlock()
}
