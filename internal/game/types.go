package game

import (
	"tycoon/internal/achievements"
	"tycoon/internal/clock"
	"tycoon/internal/ledger"
	"tycoon/internal/market"
	"tycoon/internal/outcome"
	"tycoon/internal/portfolio"
	"tycoon/internal/progression"

	"github.com/google/uuid"
)

type Dashboard struct {
	SessionID       uuid.UUID            `json:"session_id"`
	Perk            Perk                 `json:"perk"`
	Clock           clock.State          `json:"clock"`
	Ledger          ledger.Snapshot      `json:"ledger"`
	Progression     progression.Snapshot `json:"progression"`
	Portfolio       portfolio.Summary    `json:"portfolio"`
	WinTarget       int64                `json:"win_target"`
	Achievements    int                  `json:"achievements_unlocked"`
	AchievementsMax int                  `json:"achievements_total"`
	HoursUntilEvent float64              `json:"hours_until_event"`
	PendingModals   int                  `json:"pending_modals"`
	Outcome         *outcome.Verdict     `json:"outcome,omitempty"`
}

type StockView struct {
	market.Instrument
	PricePerShare int64 `json:"price_per_share"`
	Held          int64 `json:"held"`
}

type OrderInput struct {
	InstrumentID string `json:"instrument_id"`
	Side         string `json:"side"`
	Quantity     int64  `json:"quantity"`
}

type OrderResult struct {
	portfolio.Quote
	Cash int64 `json:"cash"`
	Held int64 `json:"held"`
}

type AchievementView = achievements.Status
