package events

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"tycoon/internal/clock"
	"tycoon/internal/modal"
	"tycoon/internal/notify"

	"github.com/google/uuid"
)

const (
	BonusXPShare = 0.2
	LossXPShare  = 0.1
)

var ErrUnknownEvent = errors.New("unknown event")

type Market interface {
	ApplyGlobalShock(fraction float64) int
	ApplyIndustryShock(industry string, fraction float64) int
	ApplyCompanyShock(id string, fraction float64) int
	ApplyRandomWobble(maxFraction float64) int
	Industries() []string
	IDs() []string
}

type Ledger interface {
	AdjustCash(delta int64)
	BonusIncomeMultiplier() float64
}

type Progression interface {
	AddXP(amount int64) error
}

type Modal interface {
	Acknowledge(title, message string, done func(modal.Result)) uuid.UUID
}

type Executor interface {
	Exclusive(fn func())
}

type Deps struct {
	Market      Market
	Ledger      Ledger
	Progression Progression
	Modal       Modal
	Exec        Executor
	Bus         *notify.Bus
}

type Config struct {
	MinIntervalHours float64
	MaxIntervalHours float64
}

func DefaultConfig() Config {
	return Config{MinIntervalHours: 6, MaxIntervalHours: 48}
}

type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	templates []Template
	byID      map[string]int
	countdown float64
	now       clock.Time
	round     uint64
}

func NewEngine(cfg Config, templates []Template, deps Deps, rng *rand.Rand, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	def := DefaultConfig()
	if cfg.MinIntervalHours <= 0 {
		cfg.MinIntervalHours = def.MinIntervalHours
	}
	if cfg.MaxIntervalHours < cfg.MinIntervalHours {
		cfg.MaxIntervalHours = cfg.MinIntervalHours
	}
	e := &Engine{
		cfg:  cfg,
		deps: deps,
		log:  logger,
		rng:  rng,
		byID: make(map[string]int, len(templates)),
		now:  clock.Start(),
	}
	for _, t := range templates {
		if t.ID == "" {
			logger.Warn("event template without id skipped", "title", t.Title)
			continue
		}
		if _, dup := e.byID[t.ID]; dup {
			logger.Warn("duplicate event template skipped", "event_id", t.ID)
			continue
		}
		if t.Effect.Class() == ClassUnknown {
			logger.Warn("event template has unknown effect", "event_id", t.ID, "effect", string(t.Effect))
		}
		e.byID[t.ID] = len(e.templates)
		e.templates = append(e.templates, t)
	}
	if len(e.templates) == 0 {
		logger.Error("event catalogue is empty; no random events will fire")
	}
	e.countdown = e.drawIntervalLocked()
	return e
}

func (e *Engine) Templates() []Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Template(nil), e.templates...)
}

// Reset restarts the countdown from a fresh draw. Events announced before the
// reset are dropped when their acknowledgement arrives.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.round++
	e.now = clock.Start()
	e.countdown = e.drawIntervalLocked()
	e.mu.Unlock()
}

func (e *Engine) current(round uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round == round
}

func (e *Engine) HoursUntilNext() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countdown
}

// OnHour is the tick phase: it counts down and triggers when the wait elapses.
func (e *Engine) OnHour(_ context.Context, step clock.Step) error {
	e.mu.Lock()
	e.now = step.Time
	e.countdown--
	due := e.countdown <= 0
	if due {
		e.countdown = e.drawIntervalLocked()
	}
	e.mu.Unlock()

	if !due {
		return nil
	}
	if _, err := e.TriggerRandom(); err != nil {
		e.log.Warn("random event skipped", "err", err)
	}
	return nil
}

func (e *Engine) TriggerRandom() (Instance, error) {
	e.mu.Lock()
	if len(e.templates) == 0 {
		e.mu.Unlock()
		return Instance{}, ErrUnknownEvent
	}
	t := e.templates[e.rng.Intn(len(e.templates))]
	e.mu.Unlock()
	return e.trigger(t), nil
}

func (e *Engine) TriggerByID(id string) (Instance, error) {
	e.mu.Lock()
	i, ok := e.byID[id]
	var t Template
	if ok {
		t = e.templates[i]
	}
	e.mu.Unlock()
	if !ok {
		e.log.Warn("event not found", "event_id", id)
		return Instance{}, ErrUnknownEvent
	}
	return e.trigger(t), nil
}

// trigger announces the instance; the effect is applied once the
// announcement is acknowledged.
func (e *Engine) trigger(t Template) Instance {
	inst := e.Instantiate(t)
	e.log.Info("event triggered", "event_id", t.ID, "effect", string(t.Effect), "value", inst.Value,
		"industry", inst.Industry, "company", inst.Company)

	if e.deps.Modal == nil {
		e.Apply(inst)
		return inst
	}
	e.mu.Lock()
	round := e.round
	e.mu.Unlock()
	e.deps.Modal.Acknowledge(inst.Title, inst.Description, func(res modal.Result) {
		if errors.Is(res.Err, modal.ErrClosed) {
			e.log.Info("event dropped before acknowledgement", "event_id", inst.TemplateID)
			return
		}
		apply := func() {
			if !e.current(round) {
				e.log.Info("event dropped after reset", "event_id", inst.TemplateID)
				return
			}
			e.Apply(inst)
		}
		if e.deps.Exec != nil {
			e.deps.Exec.Exclusive(apply)
			return
		}
		apply()
	})
	return inst
}

func (e *Engine) Instantiate(t Template) Instance {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst := Instance{
		ID:         uuid.New(),
		TemplateID: t.ID,
		Effect:     t.Effect,
		Value:      t.Value,
		Industry:   t.Industry,
		Company:    t.Company,
		At:         e.now,
	}
	if t.ranged() {
		lo, hi := t.MinValue, t.MaxValue
		if hi < lo {
			lo, hi = hi, lo
		}
		inst.Value = lo + e.rng.Float64()*(hi-lo)
	}
	switch t.Effect.Class() {
	case ClassIndustryShock:
		if inst.Industry == "" && e.deps.Market != nil {
			inst.Industry = pick(e.rng, e.deps.Market.Industries())
		}
	case ClassCompanyShock:
		if inst.Company == "" && e.deps.Market != nil {
			inst.Company = pick(e.rng, e.deps.Market.IDs())
		}
	}
	inst.Title = inst.Format(t.Title)
	inst.Description = inst.Format(t.Description)
	return inst
}

// Apply runs the instance's effect and publishes EventApplied. The caller must
// hold the clock's exclusive section.
func (e *Engine) Apply(inst Instance) int {
	affected := 0
	v := inst.Value
	m := e.deps.Market

	switch inst.Effect.Class() {
	case ClassGlobalShock:
		affected = m.ApplyGlobalShock(inst.Effect.Direction() * v)
	case ClassIndustryShock:
		affected = m.ApplyIndustryShock(inst.Industry, inst.Effect.Direction()*v)
	case ClassCompanyShock:
		affected = m.ApplyCompanyShock(inst.Company, inst.Effect.Direction()*v)
	case ClassVolatilityShift:
		affected = m.ApplyRandomWobble(v)
	case ClassCashBonus:
		amount := math.Round(v)
		gained := int64(math.Round(amount * e.deps.Ledger.BonusIncomeMultiplier()))
		e.deps.Ledger.AdjustCash(gained)
		e.award(int64(math.Round(float64(gained) * BonusXPShare)))
		affected = 1
	case ClassCashLoss:
		lost := int64(math.Round(v))
		e.deps.Ledger.AdjustCash(-lost)
		e.award(int64(math.Round(float64(lost) * LossXPShare)))
		affected = 1
	case ClassNoOp:
	default:
		e.log.Warn("unknown event effect ignored", "event_id", inst.TemplateID, "effect", string(inst.Effect))
	}

	if e.deps.Bus != nil {
		e.deps.Bus.EventApplied.Publish(notify.EventApplied{
			ID:          inst.ID,
			TemplateID:  inst.TemplateID,
			Title:       inst.Title,
			Description: inst.Description,
			Effect:      string(inst.Effect),
			Value:       inst.Value,
			Industry:    inst.Industry,
			Company:     inst.Company,
			Affected:    affected,
			At:          inst.At,
		})
	}
	return affected
}

func (e *Engine) award(xp int64) {
	if xp <= 0 || e.deps.Progression == nil {
		return
	}
	if err := e.deps.Progression.AddXP(xp); err != nil {
		e.log.Warn("event xp rejected", "xp", xp, "err", err)
	}
}

func (e *Engine) drawIntervalLocked() float64 {
	lo, hi := e.cfg.MinIntervalHours, e.cfg.MaxIntervalHours
	return lo + e.rng.Float64()*(hi-lo)
}

func pick(rng *rand.Rand, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[rng.Intn(len(options))]
}
