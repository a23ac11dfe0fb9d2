package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cl "tycoon/internal/cli"
	"tycoon/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	var (
		perk  string
		speed float64
	)
	if p, err := cl.LoadProfile(); err == nil {
		if p.APIBaseURL != "" && os.Getenv("TYCOON_API_BASE_URL") == "" {
			apiBase = p.APIBaseURL
		}
		perk, speed = p.Perk, p.Speed
	}

	root := &cobra.Command{
		Use:          "tycoon",
		Short:        "Economic simulation: grow an inheritance into an empire",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "tycoon-api base URL for remote commands")
	root.PersistentFlags().StringVar(&perk, "perk", perk, "starting perk: tech, finance or retail")
	root.PersistentFlags().Float64Var(&speed, "speed", speed, "starting clock speed multiplier")

	root.AddCommand(
		newPlayCmd(&perk, &speed),
		newCatalogCmd(),
		newRemoteCmd(&apiBase),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
