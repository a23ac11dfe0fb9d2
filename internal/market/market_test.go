package market

import (
	"math"
	"math/rand"
	"testing"
)

func seedInstruments() []Instrument {
	return []Instrument{
		{ID: "NOVA", Name: "Nova Systems", Industry: "Technology", Price: 100, Volatility: 0.1},
		{ID: "BOLT", Name: "Bolt Freight", Industry: "Logistics", Price: 50, Volatility: 0.2},
		{ID: "PENY", Name: "Penny Holdings", Industry: "Finance", Price: 0.02, Volatility: 1},
	}
}

func TestIndustryShockTechnology(t *testing.T) {
	m := New(seedInstruments(), rand.New(rand.NewSource(1)), nil)
	if n := m.ApplyIndustryShock("Technology", 0.2); n != 1 {
		t.Fatalf("affected=%d want 1", n)
	}
	got, _ := m.ByID("NOVA")
	if math.Abs(got.Price-120) > 1e-9 {
		t.Fatalf("price=%v want 120", got.Price)
	}
	other, _ := m.ByID("BOLT")
	if other.Price != 50 {
		t.Fatalf("unrelated instrument moved to %v", other.Price)
	}
}

func TestIndustryMatchIsCaseInsensitive(t *testing.T) {
	m := New(seedInstruments(), nil, nil)
	if n := m.ApplyIndustryShock("technology", -0.5); n != 1 {
		t.Fatalf("affected=%d want 1", n)
	}
}

func TestPricesNeverBelowFloor(t *testing.T) {
	m := New(seedInstruments(), rand.New(rand.NewSource(7)), nil)
	m.SetTechBonus(1.05)
	for i := 0; i < 2000; i++ {
		m.Tick()
		switch i % 4 {
		case 0:
			m.ApplyGlobalShock(-0.9)
		case 1:
			m.ApplyRandomWobble(1.5)
		case 2:
			m.ApplyCompanyShock("PENY", -5)
		}
		for _, inst := range m.Snapshot() {
			if inst.Price < MinPrice {
				t.Fatalf("iteration %d: %s price %v below floor", i, inst.ID, inst.Price)
			}
		}
	}
}

func TestUnknownCompanyShockIsNoop(t *testing.T) {
	m := New(seedInstruments(), nil, nil)
	before := m.Snapshot()
	if n := m.ApplyCompanyShock("NOPE", 0.5); n != 0 {
		t.Fatalf("affected=%d want 0", n)
	}
	after := m.Snapshot()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("state changed: %+v -> %+v", before[i], after[i])
		}
	}
}

func TestTechBonusAmplifiesGainsAndDampensLosses(t *testing.T) {
	tests := []struct {
		move float64
		tech bool
		want float64
	}{
		{move: 0.1, tech: true, want: 100 + 10*1.05},
		{move: -0.1, tech: true, want: 100 - 10/1.05},
		{move: 0.1, tech: false, want: 110},
		{move: -0.1, tech: false, want: 90},
	}
	for _, tc := range tests {
		got := evolvePrice(100, tc.move, tc.tech, 1.05)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("move=%v tech=%v got=%v want=%v", tc.move, tc.tech, got, tc.want)
		}
	}
}

func TestLookups(t *testing.T) {
	seed := append(seedInstruments(), Instrument{ID: "NOVA", Industry: "Dup", Price: 1})
	m := New(seed, nil, nil)
	if m.Len() != 3 {
		t.Fatalf("len=%d want 3 after dedupe", m.Len())
	}
	ids := m.IDs()
	if len(ids) != 3 || ids[0] != "NOVA" || ids[2] != "PENY" {
		t.Fatalf("ids=%v", ids)
	}
	industries := m.Industries()
	want := []string{"Finance", "Logistics", "Technology"}
	for i := range want {
		if industries[i] != want[i] {
			t.Fatalf("industries=%v want %v", industries, want)
		}
	}
	if _, ok := m.ByID("MISSING"); ok {
		t.Fatalf("expected missing lookup")
	}
}

func TestResetRestoresOpeningPrices(t *testing.T) {
	m := New(seedInstruments(), rand.New(rand.NewSource(3)), nil)
	m.ApplyGlobalShock(-0.5)
	for i := 0; i < 10; i++ {
		m.Tick()
	}
	m.Reset()
	for _, want := range seedInstruments() {
		got, ok := m.ByID(want.ID)
		if !ok || got.Price != want.Price {
			t.Fatalf("%s price=%v want %v", want.ID, got.Price, want.Price)
		}
	}
	m.ApplyCompanyShock("NOVA", 0.1)
	if got, _ := m.ByID("NOVA"); math.Abs(got.Price-110) > 1e-9 {
		t.Fatalf("shock after reset: %v", got.Price)
	}
	m.Reset()
	if got, _ := m.ByID("NOVA"); got.Price != 100 {
		t.Fatalf("opening price altered by live shocks: %v", got.Price)
	}
}
