package progression

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"tycoon/internal/notify"
)

const (
	MaxLevel = 500

	NetWorthXPShare = 0.1
)

var ErrNegativeXP = errors.New("xp amount must not be negative")

type Config struct {
	BaseXP          int64
	CurveMultiplier float64
}

func DefaultConfig() Config {
	return Config{BaseXP: 100, CurveMultiplier: 1.2}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.BaseXP <= 0 {
		c.BaseXP = def.BaseXP
	}
	if c.CurveMultiplier <= 0 || math.IsNaN(c.CurveMultiplier) {
		c.CurveMultiplier = def.CurveMultiplier
	}
	return c
}

// ThresholdFor is the cumulative XP needed to reach level.
func (c Config) ThresholdFor(level int) int64 {
	if level <= 1 {
		return 0
	}
	base := float64(c.BaseXP)
	sum := base
	for i := 2; i <= level-1; i++ {
		sum += base * math.Pow(c.CurveMultiplier, float64(i-1))
	}
	return int64(math.Round(sum))
}

func (c Config) LevelFor(xp int64) int {
	level := 1
	for level < MaxLevel && xp >= c.ThresholdFor(level+1) {
		level++
	}
	return level
}

type Snapshot struct {
	XP          int64 `json:"xp"`
	Level       int   `json:"level"`
	LevelXP     int64 `json:"level_xp"`
	NextLevelXP int64 `json:"next_level_xp"`
}

type Tracker struct {
	cfg Config
	log *slog.Logger
	bus *notify.Bus

	mu    sync.RWMutex
	xp    int64
	level int
}

func New(cfg Config, bus *notify.Bus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{cfg: cfg.normalized(), log: logger, bus: bus, level: 1}
}

func (t *Tracker) Config() Config {
	return t.cfg
}

func (t *Tracker) AddXP(amount int64) error {
	if amount < 0 {
		t.log.Warn("rejected negative xp", "amount", amount)
		return ErrNegativeXP
	}
	t.mu.Lock()
	t.xp += amount
	ups := t.levelUpLocked()
	t.mu.Unlock()
	t.publish(ups)
	return nil
}

// AwardNetWorthGain grants a share of a positive net worth delta.
func (t *Tracker) AwardNetWorthGain(previous, current int64) {
	delta := current - previous
	if delta <= 0 {
		return
	}
	xp := int64(math.Round(float64(delta) * NetWorthXPShare))
	if xp == 0 {
		return
	}
	_ = t.AddXP(xp)
}

// Recompute brings the level in line with the stored XP.
func (t *Tracker) Recompute() {
	t.mu.Lock()
	ups := t.levelUpLocked()
	t.mu.Unlock()
	t.publish(ups)
}

func (t *Tracker) levelUpLocked() []notify.LevelUp {
	var ups []notify.LevelUp
	for t.level < MaxLevel && t.xp >= t.cfg.ThresholdFor(t.level+1) {
		t.level++
		ups = append(ups, notify.LevelUp{Level: t.level, XP: t.xp})
	}
	return ups
}

func (t *Tracker) publish(ups []notify.LevelUp) {
	if t.bus == nil {
		return
	}
	for _, u := range ups {
		t.log.Info("level up", "level", u.Level, "xp", u.XP)
		t.bus.LevelUp.Publish(u)
	}
}

func (t *Tracker) Level() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.level
}

func (t *Tracker) XP() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.xp
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		XP:          t.xp,
		Level:       t.level,
		LevelXP:     t.cfg.ThresholdFor(t.level),
		NextLevelXP: t.cfg.ThresholdFor(t.level + 1),
	}
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	t.xp = 0
	t.level = 1
	t.mu.Unlock()
}
