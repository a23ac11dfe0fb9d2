package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	cl "tycoon/internal/cli"
	"tycoon/internal/game"
	"tycoon/internal/ledger"
	"tycoon/internal/modal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRemoteCmd(apiBase *string) *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Drive a game hosted by tycoon-api",
	}
	remote.AddCommand(
		newRemoteUseCmd(apiBase),
		newRemoteDashCmd(apiBase),
		newRemoteResetCmd(apiBase),
		newRemoteStocksCmd(apiBase),
		newRemoteOrderCmd(apiBase, "buy"),
		newRemoteOrderCmd(apiBase, "sell"),
		newRemoteLoanCmd(apiBase),
		newRemoteBudgetCmd(apiBase, "income"),
		newRemoteBudgetCmd(apiBase, "expense"),
		newRemoteClockCmd(apiBase),
		newRemoteModalCmd(apiBase),
		newRemoteRespondCmd(apiBase),
		newRemoteTriggerCmd(apiBase),
		newRemoteJournalCmd(apiBase),
	)
	return remote
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func shortCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newRemoteUseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "use URL",
		Short: "Remember the API base URL for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			p.APIBaseURL = strings.TrimRight(strings.TrimSpace(args[0]), "/")
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			printSuccess("Remote set to " + p.APIBaseURL)
			return nil
		},
	}
}

func newRemoteDashCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Dashboard(ctx)
			if err != nil {
				return err
			}
			d, err := decodeInto[game.Dashboard](out)
			if err != nil {
				return err
			}
			renderDashboard(d)
			return nil
		},
	}
}

func newRemoteResetCmd(apiBase *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Start a new game on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !promptYesNo("Abandon the current game and start over?") {
				printInfo("Reset cancelled.")
				return nil
			}
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Reset(ctx)
			if err != nil {
				return err
			}
			d, err := decodeInto[game.Dashboard](out)
			if err != nil {
				return err
			}
			printSuccess("A new game has started.")
			renderDashboard(d)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation")
	return cmd
}

func newRemoteStocksCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "stocks [ID]",
		Short:   "List the market or inspect one stock",
		Aliases: []string{"stock"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			client := newClient(apiBase)
			if len(args) == 1 {
				out, err := client.StockDetail(ctx, strings.ToUpper(args[0]))
				if err != nil {
					return err
				}
				s, err := decodeInto[game.StockView](out)
				if err != nil {
					return err
				}
				renderStocks([]game.StockView{s})
				return nil
			}
			out, err := client.ListStocks(ctx)
			if err != nil {
				return err
			}
			payload, err := decodeInto[stocksPayload](out)
			if err != nil {
				return err
			}
			renderStocks(payload.Stocks)
			return nil
		},
	}
}

func newRemoteOrderCmd(apiBase *string, side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " ID [QTY]",
		Short: strings.ToUpper(side[:1]) + side[1:] + " shares; answer the confirmation with `remote respond`",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := int64FromArgOrPrompt(args, 1, "Shares to "+side)
			if err != nil {
				return err
			}
			printInfo("Waiting for the confirmation to be answered...")
			out, err := newClient(apiBase).PlaceOrder(cmd.Context(), strings.ToUpper(args[0]), side, qty)
			var apiErr *cl.APIError
			if errors.As(err, &apiErr) && apiErr.Message == game.ErrDeclined.Error() {
				printInfo("Order cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			res, err := decodeInto[game.OrderResult](out)
			if err != nil {
				return err
			}
			renderOrderResult(res)
			return nil
		},
	}
}

func newRemoteLoanCmd(apiBase *string) *cobra.Command {
	loan := &cobra.Command{
		Use:   "loan",
		Short: "Borrow, repay or plan repayments",
	}
	actions := []struct {
		use, short string
		call       func(*cl.Client, context.Context, int64) (map[string]any, error)
	}{
		{"take", "Take a loan", (*cl.Client).TakeLoan},
		{"repay", "Repay part of the loan", (*cl.Client).RepayLoan},
		{"plan", "Set the automatic monthly repayment", (*cl.Client).SetRepaymentPlan},
	}
	for _, a := range actions {
		loan.AddCommand(&cobra.Command{
			Use:   a.use + " [AMOUNT]",
			Short: a.short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := int64FromArgOrPrompt(args, 0, "Amount")
				if err != nil {
					return err
				}
				ctx, cancel := shortCtx(cmd)
				defer cancel()
				out, err := a.call(newClient(apiBase), ctx, amount)
				if err != nil {
					return err
				}
				l, err := decodeInto[ledger.Snapshot](out)
				if err != nil {
					return err
				}
				renderLedger(l)
				return nil
			},
		})
	}
	return loan
}

func newRemoteBudgetCmd(apiBase *string, kind string) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   kind + " [AMOUNT]",
		Short: "Adjust the monthly " + kind,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := int64FromArgOrPrompt(args, 0, "Amount")
			if err != nil {
				return err
			}
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Budget(ctx, kind, amount, remove)
			if err != nil {
				return err
			}
			l, err := decodeInto[ledger.Snapshot](out)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Budget: +%s / -%s per month", money(l.MonthlyIncome), money(l.MonthlyExpenses)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "subtract instead of add")
	return cmd
}

func newRemoteClockCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:       "clock speed X|pause|resume",
		Short:     "Control the simulation clock",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"speed", "pause", "resume"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			client := newClient(apiBase)
			var err error
			switch args[0] {
			case "pause":
				_, err = client.Pause(ctx)
			case "resume":
				_, err = client.Resume(ctx)
			case "speed":
				if len(args) < 2 {
					return errors.New("usage: clock speed X")
				}
				var x float64
				if x, err = strconv.ParseFloat(args[1], 64); err != nil {
					return fmt.Errorf("invalid speed %q", args[1])
				}
				_, err = client.SetSpeed(ctx, x)
			default:
				return fmt.Errorf("unknown clock action %q", args[0])
			}
			if err != nil {
				return err
			}
			printSuccess("Clock updated.")
			return nil
		},
	}
}

func newRemoteModalCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "modal",
		Short: "Show the prompt currently waiting for an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).ActiveModal(ctx)
			if err != nil {
				return err
			}
			if out == nil {
				printInfo("Nothing is waiting for an answer.")
				return nil
			}
			p, err := decodeInto[modal.Prompt](out)
			if err != nil {
				return err
			}
			renderModal(p)
			fmt.Printf("id: %s\n", p.ID)
			return nil
		},
	}
}

func newRemoteRespondCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "respond ID yes|no",
		Short: "Answer a prompt",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer := true
			if len(args) == 2 {
				a, ok := parseAnswer(modal.KindConfirm, args[1])
				if !ok {
					return fmt.Errorf("answer must be yes or no, got %q", args[1])
				}
				answer = a
			}
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			if _, err := newClient(apiBase).RespondModal(ctx, args[0], answer); err != nil {
				return err
			}
			printSuccess("Answered.")
			return nil
		},
	}
}

func newRemoteTriggerCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger EVENT_ID",
		Short: "Fire a catalogue event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).TriggerEvent(ctx, args[0])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Announced %v; it applies once acknowledged.", out["title"]))
			return nil
		},
	}
}

func newRemoteJournalCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent recorded notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := shortCtx(cmd)
			defer cancel()
			out, err := newClient(apiBase).Journal(ctx, limit)
			if err != nil {
				return err
			}
			payload, err := decodeInto[struct {
				Entries []struct {
					Kind       string    `json:"kind"`
					SimTime    string    `json:"sim_time"`
					RecordedAt time.Time `json:"recorded_at"`
				} `json:"entries"`
			}](out)
			if err != nil {
				return err
			}
			if len(payload.Entries) == 0 {
				printInfo("Journal is empty.")
				return nil
			}
			for _, e := range payload.Entries {
				fmt.Printf("%-20s %-22s %s\n", e.SimTime, e.Kind, humanize.Time(e.RecordedAt))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show")
	return cmd
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(args[idx]), ",", ""), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}
