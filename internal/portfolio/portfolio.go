package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidSide        = errors.New("side must be buy or sell")
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

type Quote struct {
	InstrumentID  string `json:"instrument_id"`
	Side          Side   `json:"side"`
	Quantity      int64  `json:"quantity"`
	PricePerShare int64  `json:"price_per_share"`
	Total         int64  `json:"total"`
}

// NewQuote prices an order at the whole-dollar ceiling of the market price.
func NewQuote(id string, side Side, quantity int64, price float64) (Quote, error) {
	if quantity <= 0 {
		return Quote{}, ErrInvalidQuantity
	}
	pps := int64(math.Ceil(price))
	if pps < 1 {
		pps = 1
	}
	return Quote{
		InstrumentID:  id,
		Side:          side,
		Quantity:      quantity,
		PricePerShare: pps,
		Total:         pps * quantity,
	}, nil
}

type Holding struct {
	InstrumentID string `json:"instrument_id"`
	Shares       int64  `json:"shares"`
	CostBasis    int64  `json:"cost_basis"`
}

func (h Holding) AverageCost() float64 {
	if h.Shares == 0 {
		return 0
	}
	return float64(h.CostBasis) / float64(h.Shares)
}

type Summary struct {
	Holdings      []Holding `json:"holdings"`
	TotalInvested int64     `json:"total_invested"`
	CostBasis     int64     `json:"cost_basis"`
	MarketValue   int64     `json:"market_value"`
	ReturnRate    float64   `json:"return_rate"`
	Trades        int       `json:"trades"`
}

type Book struct {
	mu       sync.RWMutex
	holdings map[string]*Holding
	invested int64
	trades   int
}

func NewBook() *Book {
	return &Book{holdings: make(map[string]*Holding)}
}

func (b *Book) Shares(id string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if h, ok := b.holdings[id]; ok {
		return h.Shares
	}
	return 0
}

// CanFill checks a sell against current holdings. Buys are checked against
// cash by the caller.
func (b *Book) CanFill(q Quote) error {
	if q.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if q.Side == Sell && b.Shares(q.InstrumentID) < q.Quantity {
		return ErrInsufficientShares
	}
	return nil
}

func (b *Book) Fill(q Quote) error {
	if err := b.CanFill(q); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[q.InstrumentID]
	if !ok {
		h = &Holding{InstrumentID: q.InstrumentID}
		b.holdings[q.InstrumentID] = h
	}
	switch q.Side {
	case Buy:
		h.Shares += q.Quantity
		h.CostBasis += q.Total
		b.invested += q.Total
	case Sell:
		// cost basis leaves at the average cost of the shares sold
		released := int64(math.Round(h.AverageCost() * float64(q.Quantity)))
		h.Shares -= q.Quantity
		h.CostBasis -= released
		if h.Shares == 0 {
			delete(b.holdings, q.InstrumentID)
		}
	default:
		return ErrInvalidSide
	}
	b.trades++
	return nil
}

// Summarize values holdings with priceOf, which returns false for instruments
// the market no longer lists.
func (b *Book) Summarize(priceOf func(id string) (float64, bool)) Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Summary{TotalInvested: b.invested, Trades: b.trades}
	for _, h := range b.holdings {
		s.Holdings = append(s.Holdings, *h)
		s.CostBasis += h.CostBasis
		if price, ok := priceOf(h.InstrumentID); ok {
			s.MarketValue += int64(math.Round(price * float64(h.Shares)))
		}
	}
	sort.Slice(s.Holdings, func(i, j int) bool { return s.Holdings[i].InstrumentID < s.Holdings[j].InstrumentID })
	if s.CostBasis > 0 {
		s.ReturnRate = float64(s.MarketValue-s.CostBasis) / float64(s.CostBasis)
	}
	return s
}

func (b *Book) Reset() {
	b.mu.Lock()
	b.holdings = make(map[string]*Holding)
	b.invested = 0
	b.trades = 0
	b.mu.Unlock()
}
