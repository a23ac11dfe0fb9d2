package ledger

import (
	"errors"
	"testing"

	"tycoon/internal/notify"
)

func newTestLedger(t *testing.T, cash int64) (*Ledger, *notify.Bus) {
	t.Helper()
	bus := notify.NewBus()
	cfg := DefaultConfig()
	cfg.StartingCash = cash
	return New(cfg, bus, nil), bus
}

func assertNetWorth(t *testing.T, l *Ledger) {
	t.Helper()
	s := l.Snapshot()
	if s.NetWorth != s.Cash-s.Debt {
		t.Fatalf("net worth %d != cash %d - debt %d", s.NetWorth, s.Cash, s.Debt)
	}
}

func TestLoanThenMonthlyInterest(t *testing.T) {
	l, bus := newTestLedger(t, 0)
	var loans []notify.LoanTaken
	bus.LoanTaken.Subscribe(func(n notify.LoanTaken) { loans = append(loans, n) })

	if err := l.TakeLoan(1000); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	assertNetWorth(t, l)
	if interest := l.ProcessMonthlyLoan(); interest != 50 {
		t.Fatalf("interest=%d want 50", interest)
	}
	s := l.Snapshot()
	if s.LoanPrincipal != 1050 || s.Debt != 1050 {
		t.Fatalf("principal=%d debt=%d want 1050", s.LoanPrincipal, s.Debt)
	}
	if s.OnTimePayments != 0 || s.MissedPayments != 0 {
		t.Fatalf("repayment attempted without a target: %+v", s)
	}
	if len(loans) != 1 || loans[0].Amount != 1000 {
		t.Fatalf("loan notifications %+v", loans)
	}
	assertNetWorth(t, l)
}

func TestRepayWithoutCashCountsMissed(t *testing.T) {
	l, _ := newTestLedger(t, 0)
	if err := l.TakeLoan(1000); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	l.AdjustCash(-800)
	if got := l.Cash(); got != 200 {
		t.Fatalf("cash=%d want 200", got)
	}

	err := l.RepayLoan(500)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	s := l.Snapshot()
	if s.MissedPayments != 1 {
		t.Fatalf("missed=%d want 1", s.MissedPayments)
	}
	if s.LoanPrincipal != 1000 {
		t.Fatalf("principal changed to %d", s.LoanPrincipal)
	}
	assertNetWorth(t, l)
}

func TestRepayShortCashWithoutLoanCountsMissed(t *testing.T) {
	l, _ := newTestLedger(t, 200)
	if err := l.RepayLoan(500); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	s := l.Snapshot()
	if s.MissedPayments != 1 || s.LoanPrincipal != 0 || s.Cash != 200 {
		t.Fatalf("after short repay: %+v", s)
	}
	if s.CreditScore != BaseCreditScore-20 {
		t.Fatalf("credit score=%d want %d", s.CreditScore, BaseCreditScore-20)
	}

	if err := l.RepayLoan(100); !errors.Is(err, ErrNoOutstandingLoan) {
		t.Fatalf("covered repay without loan: %v", err)
	}
	if got := l.Snapshot().OnTimePayments; got != 0 {
		t.Fatalf("on-time payments=%d without a loan", got)
	}
}

func TestRepayClampsToPrincipal(t *testing.T) {
	l, _ := newTestLedger(t, 5000)
	if err := l.TakeLoan(300); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	if err := l.RepayLoan(1000); err != nil {
		t.Fatalf("repay: %v", err)
	}
	s := l.Snapshot()
	if s.LoanPrincipal != 0 || s.Debt != 0 || s.Cash != 5000 || s.OnTimePayments != 1 {
		t.Fatalf("after clamp repay: %+v", s)
	}
	if err := l.RepayLoan(10); !errors.Is(err, ErrNoOutstandingLoan) {
		t.Fatalf("repay without loan: %v", err)
	}
}

func TestMonthlyRepaymentTarget(t *testing.T) {
	l, _ := newTestLedger(t, 10_000)
	if err := l.TakeLoan(2000); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	if got := l.SetMonthlyRepayment(5000); got != 2000 {
		t.Fatalf("target clamped to %d want 2000", got)
	}
	if got := l.SetMonthlyRepayment(-5); got != 0 {
		t.Fatalf("negative target stored as %d", got)
	}
	l.SetMonthlyRepayment(500)
	l.ProcessMonthlyLoan()
	s := l.Snapshot()
	if s.LoanPrincipal != 2100-500 || s.OnTimePayments != 1 {
		t.Fatalf("after auto repay: %+v", s)
	}
	assertNetWorth(t, l)
}

func TestMonthlyLoanPublishesEachRecompute(t *testing.T) {
	l, bus := newTestLedger(t, 10_000)
	if err := l.TakeLoan(2000); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	l.SetMonthlyRepayment(500)
	var got []notify.NetWorthChanged
	bus.NetWorthChanged.Subscribe(func(n notify.NetWorthChanged) { got = append(got, n) })

	l.ProcessMonthlyLoan()
	if len(got) != 2 {
		t.Fatalf("notifications=%d want 2: %+v", len(got), got)
	}
	if got[0].Previous != 10_000 || got[0].Current != 9_900 {
		t.Fatalf("interest recompute %+v", got[0])
	}
	if got[1].Previous != 9_900 || got[1].Current != 9_900 || got[1].Cash != 11_500 || got[1].Debt != 1_600 {
		t.Fatalf("repayment recompute %+v", got[1])
	}
}

func TestInterestModifier(t *testing.T) {
	l, _ := newTestLedger(t, 0)
	l.SetInterestModifier(0.8)
	if err := l.TakeLoan(1000); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	if got := l.ProcessMonthlyLoan(); got != 40 {
		t.Fatalf("interest=%d want 40", got)
	}
}

func TestNoInterestWithoutLoan(t *testing.T) {
	l, bus := newTestLedger(t, 100)
	fired := 0
	bus.NetWorthChanged.Subscribe(func(notify.NetWorthChanged) { fired++ })
	if got := l.ProcessMonthlyLoan(); got != 0 {
		t.Fatalf("interest=%d", got)
	}
	if fired != 0 {
		t.Fatalf("net worth fired %d times for a no-op", fired)
	}
}

func TestCreditScoreClamp(t *testing.T) {
	tests := []struct {
		principal      int64
		missed, onTime int
		want           int
	}{
		{principal: 0, want: 700},
		{principal: 6000, want: 675},
		{principal: 20_000, want: 650},
		{principal: 0, missed: 2, onTime: 1, want: 665},
		{principal: 0, missed: 1 << 40, want: MinCreditScore},
		{principal: 0, onTime: 1 << 40, want: MaxCreditScore},
		{principal: 1 << 60, missed: 1 << 40, onTime: 1 << 40, want: MinCreditScore},
		{principal: 0, missed: -10, want: 700},
	}
	for _, tc := range tests {
		got := CreditScore(tc.principal, tc.missed, tc.onTime)
		if got != tc.want {
			t.Fatalf("score(%d,%d,%d)=%d want %d", tc.principal, tc.missed, tc.onTime, got, tc.want)
		}
		if got < MinCreditScore || got > MaxCreditScore {
			t.Fatalf("score %d out of range", got)
		}
	}
}

func TestApproveLoan(t *testing.T) {
	tests := []struct {
		amount  int64
		score   int
		level   int
		finance bool
		want    bool
	}{
		{amount: 1000, score: 700, level: 1, want: true},
		{amount: 1000, score: 580, level: 1, want: false},
		{amount: 90_000, score: 400, level: 3, finance: true, want: true},
		{amount: 90_000, score: 400, level: 3, want: false},
		{amount: 40_000, score: 400, level: 5, want: true},
		{amount: 60_000, score: 400, level: 5, want: false},
	}
	for _, tc := range tests {
		if got := ApproveLoan(tc.amount, tc.score, tc.level, tc.finance); got != tc.want {
			t.Fatalf("%+v got %v", tc, got)
		}
	}
}

func TestBudget(t *testing.T) {
	l, bus := newTestLedger(t, 1000)
	var updates []notify.BudgetUpdated
	bus.BudgetUpdated.Subscribe(func(n notify.BudgetUpdated) { updates = append(updates, n) })

	if err := l.AddIncome(0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero income: %v", err)
	}
	if err := l.AddIncome(500); err != nil {
		t.Fatalf("add income: %v", err)
	}
	if err := l.AddExpense(200); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if err := l.RemoveExpense(1000); err != nil {
		t.Fatalf("remove expense: %v", err)
	}
	if s := l.Snapshot(); s.MonthlyExpenses != 0 {
		t.Fatalf("expenses=%d want floor 0", s.MonthlyExpenses)
	}
	l.SetBonusIncomeMultiplier(1.1)
	if got := l.NetCashFlow(); got != 550 {
		t.Fatalf("net cash flow=%d want 550", got)
	}
	if got := l.ApplyMonthlyBudget(); got != 550 {
		t.Fatalf("applied=%d", got)
	}
	if got := l.Cash(); got != 1550 {
		t.Fatalf("cash=%d want 1550", got)
	}
	assertNetWorth(t, l)
	last := updates[len(updates)-1]
	if last.Applied != 550 {
		t.Fatalf("last budget update %+v", last)
	}
}

func TestNetWorthChangedCarriesDelta(t *testing.T) {
	l, bus := newTestLedger(t, 100)
	var got []notify.NetWorthChanged
	bus.NetWorthChanged.Subscribe(func(n notify.NetWorthChanged) { got = append(got, n) })
	l.AdjustCash(50)
	if len(got) != 1 || got[0].Previous != 100 || got[0].Current != 150 || got[0].Delta() != 50 {
		t.Fatalf("notifications %+v", got)
	}
}
