package ledger

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"tycoon/internal/notify"
)

const (
	BaseCreditScore = 700
	MinCreditScore  = 300
	MaxCreditScore  = 850

	ApprovalCreditScore = 600
	SmallLoanCap        = int64(50_000)
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrNoOutstandingLoan = errors.New("no outstanding loan")
	ErrLoanDenied        = errors.New("loan denied")
)

type Config struct {
	StartingCash          int64
	InterestRate          float64
	InterestModifier      float64
	BonusIncomeMultiplier float64
}

func DefaultConfig() Config {
	return Config{
		StartingCash:          10_000,
		InterestRate:          0.05,
		InterestModifier:      1,
		BonusIncomeMultiplier: 1,
	}
}

type Snapshot struct {
	Cash                  int64   `json:"cash"`
	Debt                  int64   `json:"debt"`
	LoanPrincipal         int64   `json:"loan_principal"`
	NetWorth              int64   `json:"net_worth"`
	InterestRate          float64 `json:"interest_rate"`
	InterestModifier      float64 `json:"interest_modifier"`
	MonthlyRepayment      int64   `json:"monthly_repayment"`
	MissedPayments        int     `json:"missed_payments"`
	OnTimePayments        int     `json:"on_time_payments"`
	CreditScore           int     `json:"credit_score"`
	MonthlyIncome         int64   `json:"monthly_income"`
	MonthlyExpenses       int64   `json:"monthly_expenses"`
	BonusIncomeMultiplier float64 `json:"bonus_income_multiplier"`
}

// Ledger owns cash, debt and the budget. Net worth is recomputed inside every
// mutation and published once the lock is released.
type Ledger struct {
	log *slog.Logger
	bus *notify.Bus
	cfg Config

	mu    sync.RWMutex
	state Snapshot
}

type pending struct {
	netWorth []notify.NetWorthChanged
	loan     *notify.LoanTaken
	budget   *notify.BudgetUpdated
}

func New(cfg Config, bus *notify.Bus, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.InterestRate <= 0 {
		cfg.InterestRate = def.InterestRate
	}
	if cfg.InterestModifier <= 0 {
		cfg.InterestModifier = def.InterestModifier
	}
	if cfg.BonusIncomeMultiplier <= 0 {
		cfg.BonusIncomeMultiplier = def.BonusIncomeMultiplier
	}
	l := &Ledger{log: logger, bus: bus, cfg: cfg}
	l.state = initialState(cfg)
	return l
}

func initialState(cfg Config) Snapshot {
	return Snapshot{
		Cash:                  cfg.StartingCash,
		NetWorth:              cfg.StartingCash,
		InterestRate:          cfg.InterestRate,
		InterestModifier:      cfg.InterestModifier,
		CreditScore:           CreditScore(0, 0, 0),
		BonusIncomeMultiplier: cfg.BonusIncomeMultiplier,
	}
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Ledger) Cash() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Cash
}

func (l *Ledger) NetWorth() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.NetWorth
}

func (l *Ledger) BonusIncomeMultiplier() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.BonusIncomeMultiplier
}

func (l *Ledger) SetInterestModifier(m float64) {
	if m <= 0 || math.IsNaN(m) {
		l.log.Warn("ignoring non-positive interest modifier", "modifier", m)
		return
	}
	l.mu.Lock()
	l.state.InterestModifier = m
	l.mu.Unlock()
}

func (l *Ledger) SetBonusIncomeMultiplier(m float64) {
	if m <= 0 || math.IsNaN(m) {
		l.log.Warn("ignoring non-positive income multiplier", "multiplier", m)
		return
	}
	l.mu.Lock()
	l.state.BonusIncomeMultiplier = m
	l.mu.Unlock()
}

// AdjustCash adds delta to cash. Cash may go negative; the outcome check is
// what punishes it.
func (l *Ledger) AdjustCash(delta int64) {
	l.mu.Lock()
	var p pending
	prev := l.state.NetWorth
	l.state.Cash += delta
	l.commitLocked(prev, &p)
	l.mu.Unlock()
	l.publish(p)
}

func (l *Ledger) TakeLoan(amount int64) error {
	if amount <= 0 {
		l.log.Warn("rejected loan", "amount", amount, "err", ErrInvalidAmount)
		return ErrInvalidAmount
	}
	l.mu.Lock()
	var p pending
	prev := l.state.NetWorth
	l.state.LoanPrincipal += amount
	l.state.Debt += amount
	l.state.Cash += amount
	l.rescoreLocked()
	l.commitLocked(prev, &p)
	p.loan = &notify.LoanTaken{Amount: amount, Principal: l.state.LoanPrincipal}
	l.mu.Unlock()
	l.publish(p)
	return nil
}

// RepayLoan pays down the loan. A payment the cash cannot cover counts as
// missed; an amount above the principal is clamped to it.
func (l *Ledger) RepayLoan(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	var p pending
	err := l.repayLocked(amount, &p)
	l.mu.Unlock()
	l.publish(p)
	return err
}

func (l *Ledger) repayLocked(amount int64, p *pending) error {
	if l.state.Cash < amount {
		l.state.MissedPayments++
		l.rescoreLocked()
		return ErrInsufficientFunds
	}
	if l.state.LoanPrincipal <= 0 {
		return ErrNoOutstandingLoan
	}
	if amount > l.state.LoanPrincipal {
		amount = l.state.LoanPrincipal
	}
	prev := l.state.NetWorth
	l.state.Cash -= amount
	l.state.LoanPrincipal -= amount
	l.state.Debt -= amount
	if l.state.Debt < 0 {
		l.state.Debt = 0
	}
	l.state.OnTimePayments++
	l.rescoreLocked()
	l.commitLocked(prev, p)
	return nil
}

// ProcessMonthlyLoan accrues interest and then attempts the configured
// repayment. It returns the interest charged.
func (l *Ledger) ProcessMonthlyLoan() int64 {
	l.mu.Lock()
	var p pending
	if l.state.LoanPrincipal <= 0 {
		l.mu.Unlock()
		return 0
	}
	interest := MonthlyInterest(l.state.LoanPrincipal, l.state.InterestRate, l.state.InterestModifier)
	prev := l.state.NetWorth
	l.state.LoanPrincipal += interest
	l.state.Debt += interest
	l.rescoreLocked()
	l.commitLocked(prev, &p)

	var repayErr error
	if target := l.state.MonthlyRepayment; target > 0 {
		repayErr = l.repayLocked(target, &p)
	}
	principal := l.state.LoanPrincipal
	l.mu.Unlock()

	l.publish(p)
	if repayErr != nil {
		l.log.Info("scheduled loan repayment missed", "err", repayErr, "principal", principal)
	}
	return interest
}

// SetMonthlyRepayment clamps amount to [0, principal] and returns the value stored.
func (l *Ledger) SetMonthlyRepayment(amount int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount < 0 {
		amount = 0
	}
	if amount > l.state.LoanPrincipal {
		amount = l.state.LoanPrincipal
	}
	l.state.MonthlyRepayment = amount
	return amount
}

func (l *Ledger) CanApproveLoan(amount int64, level int, financePerk bool) bool {
	l.mu.RLock()
	score := l.state.CreditScore
	l.mu.RUnlock()
	return ApproveLoan(amount, score, level, financePerk)
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	var p pending
	prev := l.state.NetWorth
	l.state = initialState(l.cfg)
	l.commitLocked(prev, &p)
	l.mu.Unlock()
	l.publish(p)
}

func (l *Ledger) rescoreLocked() {
	l.state.CreditScore = CreditScore(l.state.LoanPrincipal, l.state.MissedPayments, l.state.OnTimePayments)
}

func (l *Ledger) commitLocked(prev int64, p *pending) {
	l.state.NetWorth = l.state.Cash - l.state.Debt
	p.netWorth = append(p.netWorth, notify.NetWorthChanged{
		Previous: prev,
		Current:  l.state.NetWorth,
		Cash:     l.state.Cash,
		Debt:     l.state.Debt,
	})
}

func (l *Ledger) publish(p pending) {
	if l.bus == nil {
		return
	}
	for _, n := range p.netWorth {
		l.bus.NetWorthChanged.Publish(n)
	}
	if p.loan != nil {
		l.bus.LoanTaken.Publish(*p.loan)
	}
	if p.budget != nil {
		l.bus.BudgetUpdated.Publish(*p.budget)
	}
}

func MonthlyInterest(principal int64, rate, modifier float64) int64 {
	if principal <= 0 {
		return 0
	}
	raw := float64(principal) * rate * modifier
	// tolerate float noise such as 50.000000000000007
	return int64(math.Ceil(raw - 1e-9))
}

func CreditScore(principal int64, missed, onTime int) int {
	const saturate = 1000
	missed = min(max(missed, 0), saturate)
	onTime = min(max(onTime, 0), saturate)

	score := BaseCreditScore
	if principal > 10_000 {
		score -= 50
	} else if principal > 5_000 {
		score -= 25
	}
	score -= 20 * missed
	score += 5 * onTime
	return min(max(score, MinCreditScore), MaxCreditScore)
}

func ApproveLoan(amount int64, score, level int, financePerk bool) bool {
	if level >= 3 && financePerk {
		return true
	}
	if level >= 5 && amount <= SmallLoanCap {
		return true
	}
	return score >= ApprovalCreditScore
}
