package clock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotRunning     = errors.New("clock is not running")
	ErrAlreadyRunning = errors.New("clock driver already running")
	ErrPhasePanic     = errors.New("tick phase panicked")
)

type Phase int

const (
	PhaseMarket Phase = iota
	PhaseLedger
	PhaseEvents
	PhaseProgression
	PhaseOutcome
)

func (p Phase) String() string {
	switch p {
	case PhaseMarket:
		return "market"
	case PhaseLedger:
		return "ledger"
	case PhaseEvents:
		return "events"
	case PhaseProgression:
		return "progression"
	case PhaseOutcome:
		return "outcome"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type PhaseFunc func(ctx context.Context, step Step) error

type TickReport struct {
	Step     Step
	Duration time.Duration
	Err      error
}

type State struct {
	Time
	Speed     float64 `json:"speed"`
	LastSpeed float64 `json:"last_speed"`
	Paused    bool    `json:"paused"`
	Suspended int     `json:"suspended"`
	Halted    bool    `json:"halted"`
	Running   bool    `json:"running"`
}

type Config struct {
	HourEvery time.Duration
	Speed     float64
	Start     Time
}

func DefaultConfig() Config {
	return Config{
		HourEvery: time.Second,
		Speed:     1,
		Start:     Start(),
	}
}

type phaseEntry struct {
	phase Phase
	seq   int
	fn    PhaseFunc
}

// Scheduler is the only driver of simulation time. Ticks and commands share
// one exclusive section so no subsystem is mutated from two paths at once.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	exec sync.Mutex

	mu        sync.Mutex
	now       Time
	speed     float64
	paused    bool
	suspended int
	halted    bool
	phases    []phaseEntry
	listeners []func(Step)
	observers []func(TickReport)

	wake    chan struct{}
	driving atomic.Bool
	ticks   atomic.Uint64
	failed  atomic.Uint64
}

func NewScheduler(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.HourEvery <= 0 {
		cfg.HourEvery = def.HourEvery
	}
	if cfg.Start == (Time{}) {
		cfg.Start = def.Start
	}
	s := &Scheduler{
		cfg:   cfg,
		log:   logger,
		now:   cfg.Start,
		speed: 1,
		wake:  make(chan struct{}, 1),
	}
	if cfg.Speed > 0 {
		s.speed = cfg.Speed
	} else {
		s.paused = true
	}
	return s
}

// Register adds a phase. Phases run in Phase order whatever the registration
// order; phases sharing a slot run in registration order.
func (s *Scheduler) Register(phase Phase, fn PhaseFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, phaseEntry{phase: phase, seq: len(s.phases), fn: fn})
	sort.SliceStable(s.phases, func(i, j int) bool {
		if s.phases[i].phase != s.phases[j].phase {
			return s.phases[i].phase < s.phases[j].phase
		}
		return s.phases[i].seq < s.phases[j].seq
	})
}

// OnStep registers a listener invoked after every tick's phases, still inside
// the tick.
func (s *Scheduler) OnStep(fn func(Step)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scheduler) ObserveTicks(fn func(TickReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Scheduler) Now() Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Time:      s.now,
		LastSpeed: s.speed,
		Paused:    s.paused,
		Suspended: s.suspended,
		Halted:    s.halted,
		Running:   s.runningLocked(),
	}
	if !s.paused {
		st.Speed = s.speed
	}
	return st
}

func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

func (s *Scheduler) FailedTicks() uint64 {
	return s.failed.Load()
}

// SetSpeed pauses on multiplier <= 0, otherwise sets the rate and unpauses.
// A wait already in flight is restarted at the new rate.
func (s *Scheduler) SetSpeed(multiplier float64) {
	s.mu.Lock()
	if multiplier <= 0 {
		s.paused = true
	} else {
		s.speed = multiplier
		s.paused = false
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	if s.speed <= 0 {
		s.speed = 1
	}
	s.paused = false
	s.mu.Unlock()
	s.signal()
}

// Suspend and Release gate the driver independently of the user pause.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	s.suspended++
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) Release() {
	s.mu.Lock()
	if s.suspended == 0 {
		s.mu.Unlock()
		s.log.Warn("clock release without matching suspend")
		return
	}
	s.suspended--
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) Halt() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
	s.signal()
}

// Reset rewinds the calendar and clears the halt flag. Speed, pause and
// suspension are left alone. Call it from inside Exclusive.
func (s *Scheduler) Reset(start Time) {
	s.mu.Lock()
	s.now = start
	s.halted = false
	s.mu.Unlock()
	s.signal()
}

// Exclusive runs fn inside the section ticks run in. fn must not wait on a
// modal response or call Exclusive again.
func (s *Scheduler) Exclusive(fn func()) {
	s.exec.Lock()
	defer s.exec.Unlock()
	fn()
}

// Tick advances one hour and runs every phase. It refuses with ErrNotRunning
// while paused, suspended or halted.
func (s *Scheduler) Tick(ctx context.Context) (Step, error) {
	s.exec.Lock()
	defer s.exec.Unlock()

	s.mu.Lock()
	if !s.runningLocked() {
		s.mu.Unlock()
		return Step{}, ErrNotRunning
	}
	step := s.now.Advance()
	s.now = step.Time
	phases := slices.Clone(s.phases)
	listeners := slices.Clone(s.listeners)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	started := time.Now()
	err := s.runPhases(ctx, phases, step)
	for _, fn := range listeners {
		if lerr := guard(func() error { fn(step); return nil }); lerr != nil {
			s.log.Error("step listener failed", "elapsed_hours", step.Time.Elapsed, "err", lerr)
		}
	}

	s.ticks.Add(1)
	if err != nil {
		s.failed.Add(1)
	}
	report := TickReport{Step: step, Duration: time.Since(started), Err: err}
	for _, fn := range observers {
		if oerr := guard(func() error { fn(report); return nil }); oerr != nil {
			s.log.Error("tick observer failed", "elapsed_hours", step.Time.Elapsed, "err", oerr)
		}
	}
	return step, err
}

func (s *Scheduler) runPhases(ctx context.Context, phases []phaseEntry, step Step) error {
	for _, p := range phases {
		fn := p.fn
		if err := guard(func() error { return fn(ctx, step) }); err != nil {
			return fmt.Errorf("tick %d phase %s: %w", step.Time.Elapsed, p.phase, err)
		}
	}
	return nil
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPhasePanic, r)
		}
	}()
	return fn()
}

// Run drives ticks until ctx is done. Only one driver may run at a time.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.driving.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.driving.Store(false)

	s.log.Info("clock started", "hour_every", s.cfg.HourEvery.String())
	for {
		s.mu.Lock()
		running := s.runningLocked()
		interval := s.intervalLocked()
		s.mu.Unlock()

		if !running {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
				s.log.Error("tick failed", "err", err)
			}
		}
	}
}

func (s *Scheduler) runningLocked() bool {
	return !s.paused && !s.halted && s.suspended == 0 && s.speed > 0
}

func (s *Scheduler) intervalLocked() time.Duration {
	d := time.Duration(float64(s.cfg.HourEvery) / s.speed)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
