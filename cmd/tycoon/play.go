package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"tycoon/internal/catalog"
	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/modal"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// terminalPresenter hands prompts to the input loop, which owns stdin.
type terminalPresenter struct {
	prompts chan modal.Prompt
}

func (p *terminalPresenter) Present(ctx context.Context, prompt modal.Prompt) {
	select {
	case p.prompts <- prompt:
	case <-ctx.Done():
	}
}

func newPlayCmd(perk *string, speed *float64) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start a local game in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("play needs an interactive terminal (use --force to read commands from a pipe)")
			}
			cfg, err := config.LoadSimFromEnv()
			if err != nil {
				return err
			}
			if *perk != "" {
				cfg.Perk = *perk
			}
			if *speed > 0 {
				cfg.StartSpeed = *speed
			}
			return play(cmd.Context(), cfg, os.Stdin)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "allow a non-terminal stdin")
	return cmd
}

func play(ctx context.Context, cfg config.SimConfig, in io.Reader) error {
	level := cfg.SlogLevel()
	if cfg.LogLevel == "" {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	presenter := &terminalPresenter{prompts: make(chan modal.Prompt)}
	sess, err := game.New(game.Options{
		Config:    cfg,
		Catalogue: catalog.Load(catalog.Default(cfg.CatalogDir), logger),
		Presenter: presenter,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	accent.Println("Type `help` for commands.")
	var active *modal.Prompt
	ended := sess.Done()
	for {
		select {
		case <-ctx.Done():
			return <-runErr
		case err := <-runErr:
			return err
		case <-ended:
			ended = nil
			renderDashboard(sess.Dashboard())
			printInfo("Type `restart` for a new game or `quit` to leave.")
		case p := <-presenter.prompts:
			active = &p
			renderModal(p)
		case line, ok := <-lines:
			if !ok {
				cancel()
				return <-runErr
			}
			if active != nil {
				answer, valid := parseAnswer(active.Kind, line)
				if !valid {
					printWarn("Answer y or n.")
					continue
				}
				if err := sess.RespondModal(active.ID, answer); err != nil {
					printError(err.Error())
				}
				active = nil
				continue
			}
			if quit := runPlayCommand(ctx, sess, line); quit {
				cancel()
				return <-runErr
			}
			if ended == nil && !sess.Ended() {
				ended = sess.Done()
			}
		}
	}
}

func parseAnswer(kind modal.Kind, line string) (bool, bool) {
	line = strings.ToLower(strings.TrimSpace(line))
	if kind == modal.KindAcknowledge {
		return true, true
	}
	switch line {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	default:
		return false, false
	}
}

type playCommand struct {
	name string
	args []string
}

func parsePlayCommand(line string) (playCommand, bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return playCommand{}, false
	}
	return playCommand{name: fields[0], args: fields[1:]}, true
}

func (c playCommand) amount(i int) (int64, error) {
	if len(c.args) <= i {
		return 0, fmt.Errorf("%s needs an amount", c.name)
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(c.args[i], ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", c.args[i])
	}
	return v, nil
}

const playHelp = `dash                      show the dashboard
stocks                    list the market
buy ID QTY | sell ID QTY  trade shares (asks for confirmation)
loan take|repay|plan N    borrow, repay or set the monthly repayment
income add|remove N       adjust monthly income
expense add|remove N      adjust monthly expenses
speed X | pause | resume  control the clock
trigger EVENT_ID          fire a catalogue event
trophies                  list achievements
restart                   start a new game
quit                      leave the game`

// runPlayCommand reports true when the player asked to quit.
func runPlayCommand(ctx context.Context, sess *game.Session, line string) bool {
	c, ok := parsePlayCommand(line)
	if !ok {
		return false
	}
	var err error
	switch c.name {
	case "help", "?":
		fmt.Println(playHelp)
	case "quit", "exit":
		return true
	case "restart":
		sess.Reset()
		printSuccess("A new game has started.")
		renderDashboard(sess.Dashboard())
	case "dash", "d":
		renderDashboard(sess.Dashboard())
	case "stocks", "s":
		renderStocks(sess.Stocks())
	case "ledger":
		renderLedger(sess.Ledger())
	case "trophies", "achievements":
		renderAchievements(sess.Achievements())
	case "buy", "sell":
		if len(c.args) < 2 {
			err = fmt.Errorf("usage: %s ID QTY", c.name)
			break
		}
		var qty int64
		if qty, err = c.amount(1); err != nil {
			break
		}
		id := strings.ToUpper(c.args[0])
		side := c.name
		// Trades wait on the confirmation, which this loop has to read.
		go func() {
			out, err := sess.PlaceOrder(ctx, game.OrderInput{InstrumentID: id, Side: side, Quantity: qty})
			if errors.Is(err, game.ErrDeclined) {
				printInfo("Order cancelled.")
				return
			}
			if err != nil {
				printError(err.Error())
				return
			}
			renderOrderResult(out)
		}()
	case "loan":
		err = loanCommand(sess, c)
	case "income", "expense":
		err = budgetCommand(sess, c)
	case "speed":
		if len(c.args) == 0 {
			err = errors.New("usage: speed X")
			break
		}
		var x float64
		if x, err = strconv.ParseFloat(c.args[0], 64); err == nil {
			sess.SetSpeed(x)
			printInfo(fmt.Sprintf("Speed x%g", x))
		}
	case "pause":
		sess.Pause()
		printInfo("Paused.")
	case "resume":
		sess.Resume()
		printInfo("Resumed.")
	case "trigger":
		if len(c.args) == 0 {
			err = errors.New("usage: trigger EVENT_ID")
			break
		}
		_, err = sess.TriggerEvent(c.args[0])
	default:
		err = fmt.Errorf("unknown command %q (try help)", c.name)
	}
	if err != nil {
		printError(err.Error())
	}
	return false
}

func loanCommand(sess *game.Session, c playCommand) error {
	if len(c.args) < 2 {
		return errors.New("usage: loan take|repay|plan N")
	}
	n, err := c.amount(1)
	if err != nil {
		return err
	}
	switch c.args[0] {
	case "take":
		err = sess.TakeLoan(n)
	case "repay":
		err = sess.RepayLoan(n)
	case "plan":
		_, err = sess.SetMonthlyRepayment(n)
	default:
		return fmt.Errorf("unknown loan action %q", c.args[0])
	}
	if err != nil {
		return err
	}
	renderLedger(sess.Ledger())
	return nil
}

func budgetCommand(sess *game.Session, c playCommand) error {
	if len(c.args) < 2 {
		return fmt.Errorf("usage: %s add|remove N", c.name)
	}
	n, err := c.amount(1)
	if err != nil {
		return err
	}
	add, remove := sess.AddIncome, sess.RemoveIncome
	if c.name == "expense" {
		add, remove = sess.AddExpense, sess.RemoveExpense
	}
	switch c.args[0] {
	case "add":
		err = add(n)
	case "remove":
		err = remove(n)
	default:
		return fmt.Errorf("unknown %s action %q", c.name, c.args[0])
	}
	if err != nil {
		return err
	}
	l := sess.Ledger()
	printSuccess(fmt.Sprintf("Budget: +%s / -%s per month", money(l.MonthlyIncome), money(l.MonthlyExpenses)))
	return nil
}
