package ledger

import (
	"math"

	"tycoon/internal/notify"
)

func (l *Ledger) AddIncome(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.adjustBudget(amount, 0)
}

func (l *Ledger) RemoveIncome(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.adjustBudget(-amount, 0)
}

func (l *Ledger) AddExpense(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.adjustBudget(0, amount)
}

func (l *Ledger) RemoveExpense(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.adjustBudget(0, -amount)
}

// adjustBudget floors both totals at zero.
func (l *Ledger) adjustBudget(income, expenses int64) error {
	l.mu.Lock()
	l.state.MonthlyIncome = max(l.state.MonthlyIncome+income, 0)
	l.state.MonthlyExpenses = max(l.state.MonthlyExpenses+expenses, 0)
	p := pending{budget: &notify.BudgetUpdated{
		Income:   l.state.MonthlyIncome,
		Expenses: l.state.MonthlyExpenses,
	}}
	l.mu.Unlock()
	l.publish(p)
	return nil
}

// NetCashFlow is the monthly change ApplyMonthlyBudget would make.
func (l *Ledger) NetCashFlow() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return netCashFlow(l.state)
}

func netCashFlow(s Snapshot) int64 {
	income := int64(math.Round(float64(s.MonthlyIncome) * s.BonusIncomeMultiplier))
	return income - s.MonthlyExpenses
}

func (l *Ledger) ApplyMonthlyBudget() int64 {
	l.mu.Lock()
	flow := netCashFlow(l.state)
	if flow == 0 && l.state.MonthlyIncome == 0 && l.state.MonthlyExpenses == 0 {
		l.mu.Unlock()
		return 0
	}
	var p pending
	prev := l.state.NetWorth
	l.state.Cash += flow
	l.commitLocked(prev, &p)
	p.budget = &notify.BudgetUpdated{
		Income:   l.state.MonthlyIncome,
		Expenses: l.state.MonthlyExpenses,
		Applied:  flow,
	}
	l.mu.Unlock()
	l.publish(p)
	return flow
}
