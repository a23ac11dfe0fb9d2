package events

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"tycoon/internal/clock"
	"tycoon/internal/modal"
	"tycoon/internal/notify"

	"github.com/google/uuid"
)

type fakeMarket struct {
	global   []float64
	industry map[string]float64
	company  map[string]float64
	wobble   []float64
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{industry: map[string]float64{}, company: map[string]float64{}}
}

func (m *fakeMarket) ApplyGlobalShock(f float64) int {
	m.global = append(m.global, f)
	return 3
}

func (m *fakeMarket) ApplyIndustryShock(industry string, f float64) int {
	m.industry[industry] = f
	return 1
}

func (m *fakeMarket) ApplyCompanyShock(id string, f float64) int {
	m.company[id] = f
	return 1
}

func (m *fakeMarket) ApplyRandomWobble(f float64) int {
	m.wobble = append(m.wobble, f)
	return 3
}

func (m *fakeMarket) Industries() []string { return []string{"Energy"} }
func (m *fakeMarket) IDs() []string        { return []string{"ACME"} }

type fakeLedger struct {
	cash       int64
	multiplier float64
}

func (l *fakeLedger) AdjustCash(d int64)             { l.cash += d }
func (l *fakeLedger) BonusIncomeMultiplier() float64 { return l.multiplier }

type fakeXP struct{ total int64 }

func (p *fakeXP) AddXP(n int64) error {
	p.total += n
	return nil
}

type instantModal struct {
	titles []string
	err    error
}

func (m *instantModal) Acknowledge(title, _ string, done func(modal.Result)) uuid.UUID {
	m.titles = append(m.titles, title)
	done(modal.Result{Confirmed: true, Err: m.err})
	return uuid.New()
}

type countingExec struct{ calls int }

func (e *countingExec) Exclusive(fn func()) {
	e.calls++
	fn()
}

type harness struct {
	market *fakeMarket
	ledger *fakeLedger
	xp     *fakeXP
	modal  *instantModal
	exec   *countingExec
	bus    *notify.Bus
}

func newHarness(t *testing.T, templates []Template) (*Engine, *harness) {
	t.Helper()
	h := &harness{
		market: newFakeMarket(),
		ledger: &fakeLedger{multiplier: 1},
		xp:     &fakeXP{},
		modal:  &instantModal{},
		exec:   &countingExec{},
		bus:    notify.NewBus(),
	}
	e := NewEngine(Config{MinIntervalHours: 2, MaxIntervalHours: 2}, templates, Deps{
		Market:      h.market,
		Ledger:      h.ledger,
		Progression: h.xp,
		Modal:       h.modal,
		Exec:        h.exec,
		Bus:         h.bus,
	}, rand.New(rand.NewSource(7)), nil)
	return e, h
}

func TestBonusPaysCashAndXP(t *testing.T) {
	e, h := newHarness(t, []Template{{ID: "windfall", Title: "Windfall of ${amount}", Effect: EffectBonus, Value: 1000}})
	h.ledger.multiplier = 1.1

	inst, err := e.TriggerByID("windfall")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if inst.Title != "Windfall of $1000" {
		t.Fatalf("title=%q", inst.Title)
	}
	if h.ledger.cash != 1100 {
		t.Fatalf("cash=%d want 1100", h.ledger.cash)
	}
	if h.xp.total != 220 {
		t.Fatalf("xp=%d want 220", h.xp.total)
	}
	if h.exec.calls != 1 {
		t.Fatalf("effect applied outside the exclusive section")
	}
}

func TestInstanceFormat(t *testing.T) {
	tests := []struct {
		name string
		inst Instance
		text string
		want string
	}{
		{name: "amount rounds", inst: Instance{Value: 1234.6}, text: "Pay ${amount}", want: "Pay $1235"},
		{name: "percentage", inst: Instance{Value: 0.125}, text: "{percentage}%", want: "12.5%"},
		{name: "names", inst: Instance{Industry: "Energy", Company: "Acme"}, text: "{company} in {industry}", want: "Acme in Energy"},
		{name: "unbacked placeholder kept", inst: Instance{}, text: "{amount} {industry}", want: "{amount} {industry}"},
	}
	for _, tc := range tests {
		if got := tc.inst.Format(tc.text); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestLossTakesCash(t *testing.T) {
	e, h := newHarness(t, []Template{{ID: "fine", Effect: EffectLoss, Value: 500}})
	if _, err := e.TriggerByID("fine"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if h.ledger.cash != -500 || h.xp.total != 50 {
		t.Fatalf("cash=%d xp=%d", h.ledger.cash, h.xp.total)
	}
}

func TestCrashIsNegativeGlobalShock(t *testing.T) {
	e, h := newHarness(t, []Template{{ID: "crash", Title: "Markets fall {percentage}%", Effect: EffectCrash, Value: 0.2}})
	var applied []notify.EventApplied
	h.bus.EventApplied.Subscribe(func(n notify.EventApplied) { applied = append(applied, n) })

	inst, err := e.TriggerByID("crash")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(h.market.global) != 1 || h.market.global[0] != -0.2 {
		t.Fatalf("global shocks %v", h.market.global)
	}
	if inst.Title != "Markets fall 20.0%" {
		t.Fatalf("title=%q", inst.Title)
	}
	if len(applied) != 1 || applied[0].Affected != 3 || applied[0].Effect != "crash" {
		t.Fatalf("applied %+v", applied)
	}
}

func TestIndustryPlaceholderFilled(t *testing.T) {
	e, h := newHarness(t, []Template{{
		ID:          "sector",
		Title:       "{industry} rallies",
		Description: "{industry} stocks gain {percentage}%",
		Effect:      EffectIndustryBoom,
		MinValue:    0.1,
		MaxValue:    0.1,
	}})
	inst, err := e.TriggerByID("sector")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if inst.Industry != "Energy" || inst.Title != "Energy rallies" {
		t.Fatalf("instance %+v", inst)
	}
	if strings.Contains(inst.Description, "{") {
		t.Fatalf("unfilled placeholder in %q", inst.Description)
	}
	if got := h.market.industry["Energy"]; got != 0.1 {
		t.Fatalf("industry shock=%v", got)
	}
}

func TestUnknownEvent(t *testing.T) {
	e, _ := newHarness(t, nil)
	if _, err := e.TriggerByID("nope"); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := e.TriggerRandom(); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("empty catalogue: %v", err)
	}
}

func TestClosedModalDropsEffect(t *testing.T) {
	e, h := newHarness(t, []Template{{ID: "windfall", Effect: EffectBonus, Value: 100}})
	h.modal.err = modal.ErrClosed
	if _, err := e.TriggerByID("windfall"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if h.ledger.cash != 0 {
		t.Fatalf("effect applied after close: cash=%d", h.ledger.cash)
	}
}

func TestCountdownTriggers(t *testing.T) {
	e, h := newHarness(t, []Template{{ID: "news", Title: "Quiet day", Effect: EffectNewsFluff}})
	tm := clock.Start()
	for i := 0; i < 4; i++ {
		step := tm.Advance()
		tm = step.Time
		if err := e.OnHour(t.Context(), step); err != nil {
			t.Fatalf("on hour: %v", err)
		}
	}
	if len(h.modal.titles) != 2 {
		t.Fatalf("events=%d want 2 over 4 hours", len(h.modal.titles))
	}
	if got := e.HoursUntilNext(); got != 2 {
		t.Fatalf("countdown=%v want 2", got)
	}
}

type heldModal struct{ pending []func(modal.Result) }

func (m *heldModal) Acknowledge(_, _ string, done func(modal.Result)) uuid.UUID {
	m.pending = append(m.pending, done)
	return uuid.New()
}

func TestResetDropsAnnouncedEvent(t *testing.T) {
	ledger := &fakeLedger{multiplier: 1}
	held := &heldModal{}
	e := NewEngine(Config{MinIntervalHours: 5, MaxIntervalHours: 5}, []Template{{ID: "fine", Effect: EffectLoss, Value: 500}}, Deps{
		Market: newFakeMarket(),
		Ledger: ledger,
		Modal:  held,
		Exec:   &countingExec{},
	}, rand.New(rand.NewSource(7)), nil)

	if _, err := e.TriggerByID("fine"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	tm := clock.Start()
	for i := 0; i < 3; i++ {
		step := tm.Advance()
		tm = step.Time
		if err := e.OnHour(t.Context(), step); err != nil {
			t.Fatalf("on hour: %v", err)
		}
	}
	e.Reset()
	held.pending[0](modal.Result{Confirmed: true})

	if ledger.cash != 0 {
		t.Fatalf("event from before reset applied: cash=%d", ledger.cash)
	}
	if got := e.HoursUntilNext(); got != 5 {
		t.Fatalf("countdown=%v want 5 after reset", got)
	}
}
