package notify

import (
	"tycoon/internal/clock"

	"github.com/google/uuid"
)

const (
	KindHourAdvanced        = "hour_advanced"
	KindDayAdvanced         = "day_advanced"
	KindWeekAdvanced        = "week_advanced"
	KindMonthAdvanced       = "month_advanced"
	KindQuarterAdvanced     = "quarter_advanced"
	KindLevelUp             = "level_up"
	KindNetWorthChanged     = "net_worth_changed"
	KindLoanTaken           = "loan_taken"
	KindBudgetUpdated       = "budget_updated"
	KindEventApplied        = "event_applied"
	KindInvestmentMade      = "investment_made"
	KindAchievementUnlocked = "achievement_unlocked"
	KindGameEnded           = "game_ended"
)

type HourAdvanced struct {
	Time clock.Time `json:"time"`
}

type DayAdvanced struct {
	Time clock.Time `json:"time"`
}

type WeekAdvanced struct {
	Time clock.Time `json:"time"`
}

type MonthAdvanced struct {
	Time clock.Time `json:"time"`
}

type QuarterAdvanced struct {
	Time    clock.Time `json:"time"`
	NewYear bool       `json:"new_year"`
}

type LevelUp struct {
	Level int   `json:"level"`
	XP    int64 `json:"xp"`
}

type NetWorthChanged struct {
	Previous int64 `json:"previous"`
	Current  int64 `json:"current"`
	Cash     int64 `json:"cash"`
	Debt     int64 `json:"debt"`
}

func (n NetWorthChanged) Delta() int64 {
	return n.Current - n.Previous
}

type LoanTaken struct {
	Amount    int64 `json:"amount"`
	Principal int64 `json:"principal"`
}

type BudgetUpdated struct {
	Income   int64 `json:"income"`
	Expenses int64 `json:"expenses"`
	Applied  int64 `json:"applied"`
}

type EventApplied struct {
	ID          uuid.UUID  `json:"id"`
	TemplateID  string     `json:"template_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Effect      string     `json:"effect"`
	Value       float64    `json:"value"`
	Industry    string     `json:"industry,omitempty"`
	Company     string     `json:"company,omitempty"`
	Affected    int        `json:"affected"`
	At          clock.Time `json:"at"`
}

type InvestmentMade struct {
	InstrumentID  string `json:"instrument_id"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	PricePerShare int64  `json:"price_per_share"`
	Total         int64  `json:"total"`
}

type AchievementUnlocked struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type GameEnded struct {
	Outcome  string     `json:"outcome"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	NetWorth int64      `json:"net_worth"`
	At       clock.Time `json:"at"`
}
