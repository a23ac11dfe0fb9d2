package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"tycoon/internal/achievements"
	"tycoon/internal/catalog"
	"tycoon/internal/clock"
	"tycoon/internal/config"
	"tycoon/internal/events"
	"tycoon/internal/ledger"
	"tycoon/internal/market"
	"tycoon/internal/metrics"
	"tycoon/internal/modal"
	"tycoon/internal/notify"
	"tycoon/internal/outcome"
	"tycoon/internal/portfolio"
	"tycoon/internal/progression"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Config    config.SimConfig
	Catalogue catalog.Catalogue
	Presenter modal.Presenter
	Metrics   *metrics.Collectors
	Logger    *slog.Logger
	SkipIntro bool
}

// Session is the composition root: it owns one instance of every subsystem
// and is the only place commands enter the simulation.
type Session struct {
	id   uuid.UUID
	perk Perk
	log  *slog.Logger
	cfg  config.SimConfig

	bus          *notify.Bus
	clock        *clock.Scheduler
	modals       *modal.Queue
	market       *market.Market
	ledger       *ledger.Ledger
	progress     *progression.Tracker
	events       *events.Engine
	achievements *achievements.Tracker
	book         *portfolio.Book
	outcome      *outcome.Evaluator

	skipIntro bool
	running   sync.Mutex

	endMu sync.Mutex
	done  chan struct{}
}

func New(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	perk, err := ParsePerk(cfg.Perk)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Session{
		id:        uuid.New(),
		perk:      perk,
		cfg:       cfg,
		bus:       notify.NewBus(),
		book:      portfolio.NewBook(),
		skipIntro: opts.SkipIntro,
		done:      make(chan struct{}),
	}
	s.log = logger.With("session_id", s.id.String())

	s.clock = clock.NewScheduler(clock.Config{HourEvery: cfg.HourEvery, Speed: cfg.StartSpeed}, s.log.With("component", "clock"))
	s.modals = modal.New(modal.Config{Timeout: cfg.ModalTimeout}, s.clock, opts.Presenter, s.log.With("component", "modal"))
	s.market = market.New(opts.Catalogue.Instruments, rand.New(rand.NewSource(seed)), s.log.With("component", "market"))
	s.ledger = ledger.New(ledger.Config{
		StartingCash: cfg.StartingCash,
		InterestRate: cfg.InterestRate,
	}, s.bus, s.log.With("component", "ledger"))
	s.progress = progression.New(progression.Config{BaseXP: cfg.XPBase, CurveMultiplier: cfg.XPCurve}, s.bus, s.log.With("component", "progression"))
	s.achievements = achievements.New(opts.Catalogue.Achievements, s.bus, s.log.With("component", "achievements"))
	s.events = events.NewEngine(events.Config{
		MinIntervalHours: cfg.EventMinHours,
		MaxIntervalHours: cfg.EventMaxHours,
	}, opts.Catalogue.Events, events.Deps{
		Market:      s.market,
		Ledger:      s.ledger,
		Progression: s.progress,
		Modal:       s.modals,
		Exec:        s.clock,
		Bus:         s.bus,
	}, rand.New(rand.NewSource(seed+1)), s.log.With("component", "events"))
	s.outcome = outcome.New(outcome.Config{WinTarget: cfg.WinTarget}, s.ledger, s.modals, s.clock, s.bus, s.log.With("component", "outcome"))

	if s.market.Len() == 0 {
		s.log.Error("instrument catalogue is empty; trading is unavailable")
	}
	perk.apply(s.market, s.ledger)

	s.wire(opts.Metrics)
	s.log.Info("session created", "perk", string(perk), "seed", seed,
		"instruments", s.market.Len(), "events", len(opts.Catalogue.Events))
	return s, nil
}

func (s *Session) wire(m *metrics.Collectors) {
	s.clock.Register(clock.PhaseMarket, func(context.Context, clock.Step) error {
		s.market.Tick()
		return nil
	})
	s.clock.Register(clock.PhaseLedger, func(_ context.Context, step clock.Step) error {
		if !step.NewMonth {
			return nil
		}
		interest := s.ledger.ProcessMonthlyLoan()
		applied := s.ledger.ApplyMonthlyBudget()
		s.log.Debug("month closed", "interest", interest, "budget_applied", applied)
		return nil
	})
	s.clock.Register(clock.PhaseEvents, s.events.OnHour)
	s.clock.Register(clock.PhaseProgression, func(context.Context, clock.Step) error {
		s.progress.Recompute()
		return nil
	})
	s.clock.Register(clock.PhaseOutcome, s.outcome.OnTick)

	s.clock.OnStep(func(step clock.Step) {
		t := step.Time
		s.bus.HourAdvanced.Publish(notify.HourAdvanced{Time: t})
		if step.NewDay {
			s.bus.DayAdvanced.Publish(notify.DayAdvanced{Time: t})
		}
		if step.NewWeek {
			s.bus.WeekAdvanced.Publish(notify.WeekAdvanced{Time: t})
		}
		if step.NewMonth {
			s.bus.MonthAdvanced.Publish(notify.MonthAdvanced{Time: t})
		}
		if step.NewQuarter {
			s.bus.QuarterAdvanced.Publish(notify.QuarterAdvanced{Time: t, NewYear: step.NewYear})
		}
	})
	s.clock.ObserveTicks(func(r clock.TickReport) {
		if r.Err != nil {
			s.log.Error("tick failed", "elapsed_hours", r.Step.Time.Elapsed, "err", r.Err)
		}
	})

	s.bus.NetWorthChanged.Subscribe(func(n notify.NetWorthChanged) {
		s.progress.AwardNetWorthGain(n.Previous, n.Current)
	})
	s.outcome.OnEnd(func(outcome.Verdict) {
		s.clock.Halt()
		s.endMu.Lock()
		select {
		case <-s.done:
		default:
			close(s.done)
		}
		s.endMu.Unlock()
	})

	if m != nil {
		s.clock.ObserveTicks(m.ObserveTick)
		s.modals.OnDepth(m.SetModalDepth)
		m.Attach(s.bus)
	}
}

// Run drives the clock and the modal queue until ctx is done. The game ending
// halts the clock but leaves both running so Reset can start a new game; hosts
// that stop at the end watch Done.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.TryLock() {
		return clock.ErrAlreadyRunning
	}
	defer s.running.Unlock()

	if !s.skipIntro {
		s.modals.Acknowledge(IntroTitle, introMessage(s.cfg.StartingCash, s.cfg.WinTarget), nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.modals.Run(gctx) })
	g.Go(func() error { return s.clock.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reset starts a new game in place: every subsystem returns to its opening
// state, the perk is reapplied and the clock restarts from the first hour.
// Announcements still queued from the previous game are dropped when answered.
func (s *Session) Reset() {
	s.clock.Exclusive(func() {
		s.ledger.Reset()
		s.book.Reset()
		s.market.Reset()
		s.events.Reset()
		s.progress.Reset()
		s.achievements.ResetAll()
		s.outcome.Reset()
		s.perk.apply(s.market, s.ledger)
		s.clock.Reset(clock.Start())

		s.endMu.Lock()
		select {
		case <-s.done:
			s.done = make(chan struct{})
		default:
		}
		s.endMu.Unlock()
	})
	s.log.Info("session reset")
}

func (s *Session) ID() uuid.UUID             { return s.id }
func (s *Session) Perk() Perk                { return s.perk }
func (s *Session) Bus() *notify.Bus          { return s.bus }
func (s *Session) Clock() *clock.Scheduler   { return s.clock }
func (s *Session) Modals() *modal.Queue      { return s.modals }
func (s *Session) Events() []events.Template { return s.events.Templates() }

// Done is closed once the current game's outcome has been acknowledged. Reset
// replaces it, so callers fetch it again after a reset.
func (s *Session) Done() <-chan struct{} {
	s.endMu.Lock()
	defer s.endMu.Unlock()
	return s.done
}

func (s *Session) Ended() bool {
	return s.outcome.Ended()
}

func (s *Session) ClockState() clock.State {
	return s.clock.State()
}

func (s *Session) Ledger() ledger.Snapshot {
	return s.ledger.Snapshot()
}

func (s *Session) Progression() progression.Snapshot {
	return s.progress.Snapshot()
}

func (s *Session) Achievements() []AchievementView {
	return s.achievements.List()
}

func (s *Session) Portfolio() portfolio.Summary {
	return s.book.Summarize(func(id string) (float64, bool) {
		inst, ok := s.market.ByID(id)
		return inst.Price, ok
	})
}

func (s *Session) Stocks() []StockView {
	snap := s.market.Snapshot()
	out := make([]StockView, 0, len(snap))
	for _, inst := range snap {
		out = append(out, s.stockView(inst))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) Stock(id string) (StockView, error) {
	inst, err := s.lookup(id)
	if err != nil {
		return StockView{}, err
	}
	return s.stockView(inst), nil
}

func (s *Session) stockView(inst market.Instrument) StockView {
	v := StockView{Instrument: inst, Held: s.book.Shares(inst.ID)}
	if q, err := portfolio.NewQuote(inst.ID, portfolio.Buy, 1, inst.Price); err == nil {
		v.PricePerShare = q.PricePerShare
	}
	return v
}

func (s *Session) Dashboard() Dashboard {
	d := Dashboard{
		SessionID:       s.id,
		Perk:            s.perk,
		Clock:           s.clock.State(),
		Ledger:          s.ledger.Snapshot(),
		Progression:     s.progress.Snapshot(),
		Portfolio:       s.Portfolio(),
		WinTarget:       s.outcome.WinTarget(),
		Achievements:    s.achievements.UnlockedCount(),
		AchievementsMax: len(s.achievements.List()),
		HoursUntilEvent: s.events.HoursUntilNext(),
		PendingModals:   s.modals.Len(),
	}
	if v, ok := s.outcome.Verdict(); ok {
		d.Outcome = &v
	}
	return d
}

func (s *Session) SetSpeed(multiplier float64) {
	s.clock.SetSpeed(multiplier)
}

func (s *Session) Pause() {
	s.clock.Pause()
}

func (s *Session) Resume() {
	s.clock.Resume()
}

// command runs fn inside the clock's exclusive section, so it lands between
// ticks.
func (s *Session) command(fn func() error) error {
	var err error
	s.clock.Exclusive(func() {
		if s.outcome.Ended() {
			err = ErrGameEnded
			return
		}
		err = fn()
	})
	return err
}

func (s *Session) TakeLoan(amount int64) error {
	return s.command(func() error {
		if amount <= 0 {
			return ledger.ErrInvalidAmount
		}
		if !s.ledger.CanApproveLoan(amount, s.progress.Level(), s.perk == PerkFinance) {
			s.log.Warn("loan denied", "amount", amount, "credit_score", s.ledger.Snapshot().CreditScore)
			return ledger.ErrLoanDenied
		}
		return s.ledger.TakeLoan(amount)
	})
}

func (s *Session) RepayLoan(amount int64) error {
	return s.command(func() error {
		return s.ledger.RepayLoan(amount)
	})
}

func (s *Session) SetMonthlyRepayment(amount int64) (int64, error) {
	var stored int64
	err := s.command(func() error {
		stored = s.ledger.SetMonthlyRepayment(amount)
		return nil
	})
	return stored, err
}

func (s *Session) AddIncome(amount int64) error {
	return s.command(func() error { return s.ledger.AddIncome(amount) })
}

func (s *Session) RemoveIncome(amount int64) error {
	return s.command(func() error { return s.ledger.RemoveIncome(amount) })
}

func (s *Session) AddExpense(amount int64) error {
	return s.command(func() error { return s.ledger.AddExpense(amount) })
}

func (s *Session) RemoveExpense(amount int64) error {
	return s.command(func() error { return s.ledger.RemoveExpense(amount) })
}

// TriggerEvent announces a catalogue event now. Its effect lands once the
// announcement is acknowledged.
func (s *Session) TriggerEvent(id string) (events.Instance, error) {
	var inst events.Instance
	err := s.command(func() error {
		var err error
		inst, err = s.events.TriggerByID(strings.TrimSpace(id))
		return err
	})
	return inst, err
}

func (s *Session) RespondModal(id uuid.UUID, answer bool) error {
	return s.modals.Respond(id, answer)
}

func (s *Session) DismissModal(id uuid.UUID) error {
	return s.modals.Cancel(id)
}

func (s *Session) BuyShares(ctx context.Context, id string, qty int64) (OrderResult, error) {
	return s.PlaceOrder(ctx, OrderInput{InstrumentID: id, Side: string(portfolio.Buy), Quantity: qty})
}

func (s *Session) SellShares(ctx context.Context, id string, qty int64) (OrderResult, error) {
	return s.PlaceOrder(ctx, OrderInput{InstrumentID: id, Side: string(portfolio.Sell), Quantity: qty})
}

// PlaceOrder quotes, asks for confirmation outside the exclusive section, then
// settles at the quoted price. It blocks until the confirmation resolves.
func (s *Session) PlaceOrder(ctx context.Context, in OrderInput) (OrderResult, error) {
	side, err := portfolio.ParseSide(strings.ToLower(strings.TrimSpace(in.Side)))
	if err != nil {
		return OrderResult{}, err
	}

	var (
		q    portfolio.Quote
		name string
	)
	err = s.command(func() error {
		inst, err := s.lookup(in.InstrumentID)
		if err != nil {
			return err
		}
		name = inst.Name
		if q, err = portfolio.NewQuote(inst.ID, side, in.Quantity, inst.Price); err != nil {
			return err
		}
		return s.affordable(q)
	})
	if err != nil {
		return OrderResult{}, err
	}

	prompt := purchasePrompt(q.Quantity, name, q.Total)
	title := "Confirm Purchase"
	if side == portfolio.Sell {
		prompt = salePrompt(q.Quantity, name, q.Total)
		title = "Confirm Sale"
	}
	ok, err := s.modals.Ask(ctx, title, prompt)
	if err != nil && !errors.Is(err, modal.ErrTimeout) {
		return OrderResult{}, fmt.Errorf("confirm order: %w", err)
	}
	if !ok {
		s.log.Info("order declined", "instrument_id", q.InstrumentID, "side", string(side), "quantity", q.Quantity)
		return OrderResult{}, ErrDeclined
	}

	var out OrderResult
	err = s.command(func() error {
		if err := s.affordable(q); err != nil {
			return err
		}
		if err := s.book.Fill(q); err != nil {
			return err
		}
		if side == portfolio.Buy {
			s.ledger.AdjustCash(-q.Total)
		} else {
			s.ledger.AdjustCash(q.Total)
		}
		s.bus.InvestmentMade.Publish(notify.InvestmentMade{
			InstrumentID:  q.InstrumentID,
			Side:          string(q.Side),
			Quantity:      q.Quantity,
			PricePerShare: q.PricePerShare,
			Total:         q.Total,
		})
		out = OrderResult{Quote: q, Cash: s.ledger.Cash(), Held: s.book.Shares(q.InstrumentID)}
		return nil
	})
	if err != nil {
		return OrderResult{}, err
	}
	s.log.Info("order filled", "instrument_id", q.InstrumentID, "side", string(side), "quantity", q.Quantity, "total", q.Total)
	return out, nil
}

func (s *Session) affordable(q portfolio.Quote) error {
	if q.Side == portfolio.Buy {
		if s.ledger.Cash() < q.Total {
			return ledger.ErrInsufficientFunds
		}
		return nil
	}
	return s.book.CanFill(q)
}

func (s *Session) lookup(id string) (market.Instrument, error) {
	id = strings.TrimSpace(id)
	if inst, ok := s.market.ByID(id); ok {
		return inst, nil
	}
	if inst, ok := s.market.ByID(strings.ToUpper(id)); ok {
		return inst, nil
	}
	s.log.Warn("instrument not found", "instrument_id", id)
	return market.Instrument{}, market.ErrUnknownInstrument
}
