package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tycoon/internal/game"
	"tycoon/internal/ledger"
	"tycoon/internal/modal"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

type stocksPayload struct {
	Stocks []game.StockView `json:"stocks"`
}

type achievementsPayload struct {
	Achievements []game.AchievementView `json:"achievements"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptYesNo(label string) bool {
	for {
		text, err := promptRequired(label + " [y/n]")
		if err != nil {
			return false
		}
		if answer, ok := parseAnswer(modal.KindConfirm, text); ok {
			return answer
		}
		printWarn("Answer y or n.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(strings.ReplaceAll(text, ",", ""), 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func renderDashboard(d game.Dashboard) {
	l := d.Ledger
	p := d.Progression
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s   speed x%s%s", d.Clock.Time.String(), humanize.Ftoa(d.Clock.LastSpeed), pausedTag(d))),
		"",
		fmt.Sprintf("Cash        %s", money(l.Cash)),
		fmt.Sprintf("Debt        %s", money(l.Debt)),
		fmt.Sprintf("Net worth   %s  (goal %s)", colorizeMoney(l.NetWorth), money(d.WinTarget)),
		fmt.Sprintf("Credit      %d   interest %.1f%%", l.CreditScore, l.InterestRate*l.InterestModifier*100),
		fmt.Sprintf("Budget      +%s / -%s per month", money(l.MonthlyIncome), money(l.MonthlyExpenses)),
		"",
		fmt.Sprintf("Level %d     %s / %s XP", p.Level, humanize.Comma(p.XP), humanize.Comma(p.NextLevelXP)),
		fmt.Sprintf("Portfolio   %s in %d holdings (return %s)", money(d.Portfolio.MarketValue), len(d.Portfolio.Holdings), colorizePercent(d.Portfolio.ReturnRate*100)),
		fmt.Sprintf("Trophies    %d / %d", d.Achievements, d.AchievementsMax),
		fmt.Sprintf("Next event  in %.0fh", d.HoursUntilEvent),
	}
	if d.Perk != game.PerkNone {
		lines = append(lines, fmt.Sprintf("Perk        %s: %s", d.Perk, d.Perk.Describe()))
	}
	if d.Outcome != nil {
		lines = append(lines, "", titleStyle.Render(d.Outcome.Title)+" "+d.Outcome.Message)
	}
	fmt.Println(panelStyle.Width(min(termWidth()-2, 78)).Render(strings.Join(lines, "\n")))
}

func pausedTag(d game.Dashboard) string {
	switch {
	case d.Clock.Halted:
		return "   [ended]"
	case d.Clock.Paused:
		return "   [paused]"
	case d.Clock.Suspended > 0:
		return "   [waiting]"
	default:
		return ""
	}
}

func renderStocks(stocks []game.StockView) {
	accent.Println("\n== STOCK MARKET ==")
	if len(stocks) == 0 {
		printInfo("No stocks found.")
		return
	}
	fmt.Printf("%-6s %-24s %-14s %10s %8s\n", "ID", "NAME", "INDUSTRY", "PRICE", "HELD")
	for _, s := range stocks {
		fmt.Printf("%-6s %-24s %-14s %10s %8s\n",
			s.ID,
			truncate(s.Name, 24),
			truncate(s.Industry, 14),
			money(s.PricePerShare),
			humanize.Comma(s.Held),
		)
	}
	fmt.Println()
}

func renderLedger(l ledger.Snapshot) {
	accent.Println("\n== LEDGER ==")
	fmt.Printf("Cash:               %s\n", money(l.Cash))
	fmt.Printf("Debt:               %s\n", money(l.Debt))
	fmt.Printf("Loan principal:     %s\n", money(l.LoanPrincipal))
	fmt.Printf("Net worth:          %s\n", colorizeMoney(l.NetWorth))
	fmt.Printf("Monthly repayment:  %s\n", money(l.MonthlyRepayment))
	fmt.Printf("Credit score:       %d (on time %d, missed %d)\n", l.CreditScore, l.OnTimePayments, l.MissedPayments)
	fmt.Println()
}

func renderAchievements(list []game.AchievementView) {
	accent.Println("\n== ACHIEVEMENTS ==")
	for _, a := range list {
		mark := neutral.Sprint("[ ]")
		if a.Unlocked {
			mark = success.Sprint("[x]")
		}
		fmt.Printf("%s %-24s %s\n", mark, a.Name, a.Description)
	}
	fmt.Println()
}

func renderOrderResult(out game.OrderResult) {
	verb := "Bought"
	if out.Side == "sell" {
		verb = "Sold"
	}
	printSuccess(fmt.Sprintf("%s %s %s at %s (total %s). Cash %s, holding %s.",
		verb, humanize.Comma(out.Quantity), out.InstrumentID, money(out.PricePerShare),
		money(out.Total), money(out.Cash), humanize.Comma(out.Held)))
}

func renderModal(p modal.Prompt) {
	hint := "[enter] OK"
	if p.Kind == modal.KindConfirm {
		hint = "[y] yes  [n] no"
	}
	body := titleStyle.Render(p.Title) + "\n\n" + p.Message + "\n\n" + neutral.Sprint(hint)
	fmt.Println()
	fmt.Println(modalStyle.Width(min(termWidth()-2, 64)).Render(body))
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func money(v int64) string {
	if v < 0 {
		return "-$" + humanize.Comma(-v)
	}
	return "$" + humanize.Comma(v)
}

func colorizeMoney(v int64) string {
	text := money(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
