package clock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdvanceRollsCalendar(t *testing.T) {
	now := Start()
	var weeks, months, quarters int
	for i := 0; i < HoursPerDay*DaysPerQuarter*QuartersPerYear; i++ {
		step := now.Advance()
		if step.NewWeek {
			weeks++
		}
		if step.NewMonth {
			months++
		}
		if step.NewQuarter {
			quarters++
		}
		if step.Time.Hour < 0 || step.Time.Hour >= HoursPerDay {
			t.Fatalf("hour out of range: %d", step.Time.Hour)
		}
		now = step.Time
	}
	if now.Year != 2 || now.Quarter != 1 || now.Day != 1 || now.Hour != 0 {
		t.Fatalf("unexpected time after a year: %+v", now)
	}
	if weeks != 360/DaysPerWeek {
		t.Fatalf("weeks=%d want %d", weeks, 360/DaysPerWeek)
	}
	if months != 12 {
		t.Fatalf("months=%d want 12", months)
	}
	if quarters != 4 {
		t.Fatalf("quarters=%d want 4", quarters)
	}
}

func TestFirstWeekBoundaryIsDayEight(t *testing.T) {
	now := Start()
	for {
		step := now.Advance()
		now = step.Time
		if step.NewWeek {
			break
		}
	}
	if now.Day != 8 || now.Hour != 0 {
		t.Fatalf("first week boundary at %+v", now)
	}
}

func TestPhasesRunInFixedOrder(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	var got []Phase
	for _, p := range []Phase{PhaseOutcome, PhaseEvents, PhaseMarket, PhaseProgression, PhaseLedger} {
		p := p
		s.Register(p, func(context.Context, Step) error {
			got = append(got, p)
			return nil
		})
	}
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	want := []Phase{PhaseMarket, PhaseLedger, PhaseEvents, PhaseProgression, PhaseOutcome}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestListenerSeesAdvancedHour(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	var seen Time
	s.OnStep(func(step Step) { seen = step.Time })
	step, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if seen != step.Time || seen.Hour != 1 {
		t.Fatalf("listener saw %+v, step %+v", seen, step.Time)
	}
}

func TestPanickingPhaseFailsTickButNotLoop(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	var after int
	s.Register(PhaseMarket, func(context.Context, Step) error { panic("boom") })
	s.Register(PhaseOutcome, func(context.Context, Step) error {
		after++
		return nil
	})
	_, err := s.Tick(context.Background())
	if !errors.Is(err, ErrPhasePanic) {
		t.Fatalf("expected phase panic, got %v", err)
	}
	if after != 0 {
		t.Fatalf("later phases ran after failure")
	}
	if s.FailedTicks() != 1 || s.Ticks() != 1 {
		t.Fatalf("ticks=%d failed=%d", s.Ticks(), s.FailedTicks())
	}
	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrPhasePanic) {
		t.Fatalf("second tick: %v", err)
	}
	if s.Now().Elapsed != 2 {
		t.Fatalf("elapsed=%d want 2", s.Now().Elapsed)
	}
}

func TestPanickingObserverDoesNotStopTicks(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	var seen []TickReport
	s.ObserveTicks(func(TickReport) { panic("observer") })
	s.ObserveTicks(func(r TickReport) { seen = append(seen, r) })
	for i := 0; i < 2; i++ {
		if _, err := s.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if len(seen) != 2 || s.Ticks() != 2 || s.FailedTicks() != 0 {
		t.Fatalf("reports=%d ticks=%d failed=%d", len(seen), s.Ticks(), s.FailedTicks())
	}
}

func TestTickRefusedWhileGated(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	s.Suspend()
	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("suspended tick: %v", err)
	}
	s.Release()
	s.Pause()
	if _, err := s.Tick(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("paused tick: %v", err)
	}
	s.Resume()
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatalf("resumed tick: %v", err)
	}
}

func TestUserPauseSurvivesSuspension(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	s.Suspend()
	s.Pause()
	s.Release()
	st := s.State()
	if !st.Paused || st.Running {
		t.Fatalf("pause lost after release: %+v", st)
	}
	s.Resume()
	if !s.State().Running {
		t.Fatalf("expected running after resume")
	}
}

func TestSpeedControls(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)
	s.SetSpeed(4)
	if st := s.State(); st.Speed != 4 || st.Paused {
		t.Fatalf("speed 4: %+v", st)
	}
	s.SetSpeed(0)
	if st := s.State(); st.Speed != 0 || !st.Paused || st.LastSpeed != 4 {
		t.Fatalf("speed 0: %+v", st)
	}
	s.Resume()
	if st := s.State(); st.Speed != 4 {
		t.Fatalf("resume should restore last speed: %+v", st)
	}
	s.Pause()
	s.Pause()
	s.Resume()
	s.Resume()
	if st := s.State(); st.Speed != 4 || st.Paused {
		t.Fatalf("pause/resume not idempotent: %+v", st)
	}
}

func TestRunDrivesTicksAndStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HourEvery = time.Millisecond
	s := NewScheduler(cfg, nil)
	var n atomic.Int64
	s.Register(PhaseMarket, func(context.Context, Step) error {
		n.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for n.Load() < 5 {
		select {
		case <-deadline:
			t.Fatalf("driver produced %d ticks", n.Load())
		case <-time.After(time.Millisecond):
		}
	}
	if err := s.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second driver: %v", err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
}

func TestRunHoldsWhileSuspended(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HourEvery = time.Millisecond
	s := NewScheduler(cfg, nil)
	s.Suspend()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if s.Ticks() != 0 {
		t.Fatalf("ticked %d times while suspended", s.Ticks())
	}
	s.Release()
	deadline := time.After(2 * time.Second)
	for s.Ticks() == 0 {
		select {
		case <-deadline:
			t.Fatalf("driver did not resume")
		case <-time.After(time.Millisecond):
		}
	}
}
