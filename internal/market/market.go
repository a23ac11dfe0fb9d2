package market

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sort"
	"strings"
	"sync"
)

const (
	MinPrice     = 0.01
	TechIndustry = "Technology"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

type Instrument struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Industry   string  `json:"industry" yaml:"industry"`
	Price      float64 `json:"price" yaml:"price"`
	Volatility float64 `json:"volatility" yaml:"volatility"`
	Volume     int64   `json:"volume" yaml:"volume"`
}

func (i Instrument) IsTech() bool {
	return strings.EqualFold(i.Industry, TechIndustry)
}

type Market struct {
	log *slog.Logger

	mu          sync.RWMutex
	rng         *rand.Rand
	instruments []Instrument
	opening     []Instrument
	index       map[string]int
	techBonus   float64
}

func New(seed []Instrument, rng *rand.Rand, logger *slog.Logger) *Market {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	m := &Market{
		log:       logger,
		rng:       rng,
		index:     make(map[string]int, len(seed)),
		techBonus: 1,
	}
	for _, inst := range seed {
		inst.ID = strings.TrimSpace(inst.ID)
		if inst.ID == "" {
			logger.Warn("instrument without id skipped", "name", inst.Name)
			continue
		}
		if _, dup := m.index[inst.ID]; dup {
			logger.Warn("duplicate instrument skipped", "instrument_id", inst.ID)
			continue
		}
		inst.Volatility = clamp(inst.Volatility, 0, 1)
		inst.Price = floorPrice(inst.Price)
		m.index[inst.ID] = len(m.instruments)
		m.instruments = append(m.instruments, inst)
	}
	m.opening = slices.Clone(m.instruments)
	return m
}

// Reset restores every instrument to its opening price.
func (m *Market) Reset() {
	m.mu.Lock()
	m.instruments = slices.Clone(m.opening)
	m.mu.Unlock()
}

// SetTechBonus sets the multiplier applied to Technology random-walk moves:
// gains are multiplied by it, losses divided.
func (m *Market) SetTechBonus(multiplier float64) {
	if multiplier <= 0 || math.IsNaN(multiplier) {
		m.log.Warn("ignoring non-positive tech bonus", "multiplier", multiplier)
		return
	}
	m.mu.Lock()
	m.techBonus = multiplier
	m.mu.Unlock()
}

func (m *Market) TechBonus() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.techBonus
}

func (m *Market) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]float64, len(m.instruments))
	for i, inst := range m.instruments {
		move := (m.rng.Float64()*2 - 1) * inst.Volatility
		next[i] = evolvePrice(inst.Price, move, inst.IsTech(), m.techBonus)
	}
	for i := range m.instruments {
		m.instruments[i].Price = next[i]
	}
}

func evolvePrice(price, move float64, tech bool, bonus float64) float64 {
	delta := price * move
	if tech && bonus > 0 {
		if delta > 0 {
			delta *= bonus
		} else if delta < 0 {
			delta /= bonus
		}
	}
	return floorPrice(price + delta)
}

func (m *Market) ApplyGlobalShock(fraction float64) int {
	return m.shock(func(Instrument) bool { return true }, fraction)
}

func (m *Market) ApplyIndustryShock(industry string, fraction float64) int {
	n := m.shock(func(inst Instrument) bool { return strings.EqualFold(inst.Industry, industry) }, fraction)
	if n == 0 {
		m.log.Warn("industry shock matched no instruments", "industry", industry)
	}
	return n
}

func (m *Market) ApplyCompanyShock(id string, fraction float64) int {
	n := m.shock(func(inst Instrument) bool { return inst.ID == id }, fraction)
	if n == 0 {
		m.log.Warn("company shock for unknown instrument", "instrument_id", id)
	}
	return n
}

func (m *Market) ApplyRandomWobble(maxFraction float64) int {
	maxFraction = math.Abs(maxFraction)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.instruments {
		f := (m.rng.Float64()*2 - 1) * maxFraction
		m.instruments[i].Price = floorPrice(m.instruments[i].Price * (1 + f))
	}
	return len(m.instruments)
}

func (m *Market) shock(match func(Instrument) bool, fraction float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i, inst := range m.instruments {
		if !match(inst) {
			continue
		}
		m.instruments[i].Price = floorPrice(inst.Price * (1 + fraction))
		n++
	}
	return n
}

func (m *Market) ByID(id string) (Instrument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return Instrument{}, false
	}
	return m.instruments[i], true
}

func (m *Market) Industries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, inst := range m.instruments {
		if inst.Industry == "" {
			continue
		}
		if _, ok := seen[inst.Industry]; ok {
			continue
		}
		seen[inst.Industry] = struct{}{}
		out = append(out, inst.Industry)
	}
	sort.Strings(out)
	return out
}

func (m *Market) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.instruments))
	for _, inst := range m.instruments {
		out = append(out, inst.ID)
	}
	return out
}

func (m *Market) Snapshot() []Instrument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Instrument(nil), m.instruments...)
}

func (m *Market) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instruments)
}

func floorPrice(p float64) float64 {
	if math.IsNaN(p) || p < MinPrice {
		return MinPrice
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
