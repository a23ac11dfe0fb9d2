package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	TechPriceBonus          = 1.05
	FinanceInterestModifier = 0.8
	RetailIncomeMultiplier  = 1.10

	IntroTitle = "A New Beginning"
)

var (
	ErrGameEnded   = errors.New("game has ended")
	ErrDeclined    = errors.New("declined")
	ErrInvalidPerk = errors.New("perk must be tech, finance or retail")
)

type Perk string

const (
	PerkNone    Perk = ""
	PerkTech    Perk = "tech"
	PerkFinance Perk = "finance"
	PerkRetail  Perk = "retail"
)

func ParsePerk(s string) (Perk, error) {
	switch p := Perk(strings.ToLower(strings.TrimSpace(s))); p {
	case PerkNone, PerkTech, PerkFinance, PerkRetail:
		return p, nil
	default:
		return PerkNone, fmt.Errorf("%w: %q", ErrInvalidPerk, s)
	}
}

func Perks() []Perk {
	return []Perk{PerkTech, PerkFinance, PerkRetail}
}

func (p Perk) Describe() string {
	switch p {
	case PerkTech:
		return "Technology stocks gain 5% more and lose 5% less"
	case PerkFinance:
		return "Loan interest is reduced by 20%"
	case PerkRetail:
		return "Income and cash bonuses pay 10% more"
	default:
		return "No perk"
	}
}

type perkTargets interface {
	SetTechBonus(multiplier float64)
}

type perkLedger interface {
	SetInterestModifier(m float64)
	SetBonusIncomeMultiplier(m float64)
}

func (p Perk) apply(m perkTargets, l perkLedger) {
	switch p {
	case PerkTech:
		m.SetTechBonus(TechPriceBonus)
	case PerkFinance:
		l.SetInterestModifier(FinanceInterestModifier)
	case PerkRetail:
		l.SetBonusIncomeMultiplier(RetailIncomeMultiplier)
	}
}

func introMessage(cash, target int64) string {
	return fmt.Sprintf(
		"An inheritance of $%s has landed in your account. Grow it into a $%s empire, and keep your debts below your cash while you do.",
		humanize.Comma(cash), humanize.Comma(target),
	)
}

func purchasePrompt(qty int64, name string, total int64) string {
	return fmt.Sprintf("Buy %s shares of %s for $%s?", humanize.Comma(qty), name, humanize.Comma(total))
}

func salePrompt(qty int64, name string, total int64) string {
	return fmt.Sprintf("Sell %s shares of %s for $%s?", humanize.Comma(qty), name, humanize.Comma(total))
}
