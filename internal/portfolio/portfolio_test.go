package portfolio

import (
	"errors"
	"math"
	"testing"
)

func TestQuoteRoundsUp(t *testing.T) {
	tests := []struct {
		price float64
		qty   int64
		pps   int64
		total int64
	}{
		{price: 10, qty: 3, pps: 10, total: 30},
		{price: 10.01, qty: 3, pps: 11, total: 33},
		{price: 0.01, qty: 5, pps: 1, total: 5},
	}
	for _, tc := range tests {
		q, err := NewQuote("ACME", Buy, tc.qty, tc.price)
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if q.PricePerShare != tc.pps || q.Total != tc.total {
			t.Fatalf("price %v: got %+v", tc.price, q)
		}
	}
	if _, err := NewQuote("ACME", Buy, 0, 10); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero quantity: %v", err)
	}
}

func TestFillAndSummarize(t *testing.T) {
	b := NewBook()
	buy, _ := NewQuote("ACME", Buy, 10, 20)
	if err := b.Fill(buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	sell, _ := NewQuote("ACME", Sell, 4, 30)
	if err := b.Fill(sell); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if got := b.Shares("ACME"); got != 6 {
		t.Fatalf("shares=%d want 6", got)
	}

	s := b.Summarize(func(string) (float64, bool) { return 30, true })
	if s.TotalInvested != 200 || s.CostBasis != 120 || s.MarketValue != 180 {
		t.Fatalf("summary %+v", s)
	}
	if math.Abs(s.ReturnRate-0.5) > 1e-9 {
		t.Fatalf("return rate=%v want 0.5", s.ReturnRate)
	}
	if s.Trades != 2 {
		t.Fatalf("trades=%d", s.Trades)
	}
}

func TestSellMoreThanHeld(t *testing.T) {
	b := NewBook()
	q, _ := NewQuote("ACME", Sell, 1, 5)
	if err := b.Fill(q); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if s := b.Summarize(func(string) (float64, bool) { return 0, false }); s.Trades != 0 || len(s.Holdings) != 0 {
		t.Fatalf("state changed: %+v", s)
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("sell"); err != nil || s != Sell {
		t.Fatalf("sell: %v %v", s, err)
	}
	if _, err := ParseSide("short"); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("short: %v", err)
	}
}
