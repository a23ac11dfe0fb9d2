package achievements

import (
	"errors"
	"log/slog"
	"sync"

	"tycoon/internal/notify"
)

const (
	First50KNetWorth = "FIRST_50K_NETWORTH"
	MillionaireClub  = "MILLIONAIRE_CLUB"
	First1KCash      = "FIRST_1K_CASH"
	FirstInvestment  = "FIRST_INVESTMENT"
	TenInvestments   = "TEN_INVESTMENTS"
	SurvivedCrash    = "SURVIVED_CRASH"
	FirstLoan        = "FIRST_LOAN"
)

const (
	netWorth50K     = 50_000
	netWorthMillion = 1_000_000
	cashThreshold   = 11_000
	tenBuys         = 10
)

var ErrUnknownAchievement = errors.New("unknown achievement")

type Definition struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

type Status struct {
	Definition
	Unlocked bool `json:"unlocked"`
}

type Tracker struct {
	log *slog.Logger
	bus *notify.Bus

	mu       sync.Mutex
	defs     []Definition
	index    map[string]int
	unlocked map[string]bool
	buys     int
}

// New builds a tracker over defs and, when bus is non-nil, subscribes the
// built-in unlock rules to it.
func New(defs []Definition, bus *notify.Bus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		log:      logger,
		bus:      bus,
		index:    make(map[string]int, len(defs)),
		unlocked: make(map[string]bool, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			logger.Warn("achievement without id skipped", "name", d.Name)
			continue
		}
		if _, dup := t.index[d.ID]; dup {
			logger.Warn("duplicate achievement skipped", "achievement_id", d.ID)
			continue
		}
		t.index[d.ID] = len(t.defs)
		t.defs = append(t.defs, d)
	}
	if len(t.defs) == 0 {
		logger.Error("achievement catalogue is empty")
	}
	if bus != nil {
		t.subscribe(bus)
	}
	return t
}

func (t *Tracker) subscribe(bus *notify.Bus) {
	bus.NetWorthChanged.Subscribe(func(n notify.NetWorthChanged) {
		if n.Current >= netWorth50K {
			t.tryUnlock(First50KNetWorth)
		}
		if n.Current >= netWorthMillion {
			t.tryUnlock(MillionaireClub)
		}
		if n.Cash >= cashThreshold {
			t.tryUnlock(First1KCash)
		}
	})
	bus.InvestmentMade.Subscribe(func(n notify.InvestmentMade) {
		if n.Side != "buy" {
			return
		}
		t.mu.Lock()
		t.buys++
		buys := t.buys
		t.mu.Unlock()
		t.tryUnlock(FirstInvestment)
		if buys >= tenBuys {
			t.tryUnlock(TenInvestments)
		}
	})
	bus.EventApplied.Subscribe(func(n notify.EventApplied) {
		if n.Effect == "crash" {
			t.tryUnlock(SurvivedCrash)
		}
	})
	bus.LoanTaken.Subscribe(func(notify.LoanTaken) {
		t.tryUnlock(FirstLoan)
	})
}

func (t *Tracker) tryUnlock(id string) {
	t.mu.Lock()
	_, known := t.index[id]
	t.mu.Unlock()
	if !known {
		return
	}
	_, _ = t.Unlock(id)
}

// Unlock flips id to unlocked. It reports whether this call changed it.
func (t *Tracker) Unlock(id string) (bool, error) {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		t.log.Warn("achievement not found", "achievement_id", id)
		return false, ErrUnknownAchievement
	}
	if t.unlocked[id] {
		t.mu.Unlock()
		return false, nil
	}
	t.unlocked[id] = true
	d := t.defs[i]
	t.mu.Unlock()

	t.log.Info("achievement unlocked", "achievement_id", d.ID)
	if t.bus != nil {
		t.bus.AchievementUnlocked.Publish(notify.AchievementUnlocked{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	return true, nil
}

func (t *Tracker) IsUnlocked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unlocked[id]
}

func (t *Tracker) List() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Status, 0, len(t.defs))
	for _, d := range t.defs {
		out = append(out, Status{Definition: d, Unlocked: t.unlocked[d.ID]})
	}
	return out
}

func (t *Tracker) UnlockedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.unlocked)
}

// ResetAll relocks every achievement and clears the buy counter.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	t.unlocked = make(map[string]bool, len(t.defs))
	t.buys = 0
	t.mu.Unlock()
}
