package main

import (
	"fmt"

	"tycoon/internal/catalog"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:       "catalog events|stocks|achievements",
		Short:     "Print the static catalogues a game loads",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"events", "stocks", "achievements"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Load(catalog.Default(dir), nil)
			switch args[0] {
			case "events":
				accent.Println("\n== EVENTS ==")
				fmt.Printf("%-22s %-16s %8s  %s\n", "ID", "EFFECT", "VALUE", "TITLE")
				for _, e := range cat.Events {
					value := fmt.Sprintf("%g", e.Value)
					if e.MinValue != 0 || e.MaxValue != 0 {
						value = fmt.Sprintf("%g-%g", e.MinValue, e.MaxValue)
					}
					fmt.Printf("%-22s %-16s %8s  %s\n", truncate(e.ID, 22), e.Effect, value, e.Title)
				}
			case "stocks":
				accent.Println("\n== INSTRUMENTS ==")
				fmt.Printf("%-6s %-24s %-14s %10s %6s\n", "ID", "NAME", "INDUSTRY", "PRICE", "VOL")
				for _, s := range cat.Instruments {
					fmt.Printf("%-6s %-24s %-14s %10.2f %6.2f\n", s.ID, truncate(s.Name, 24), truncate(s.Industry, 14), s.Price, s.Volatility)
				}
			case "achievements":
				accent.Println("\n== ACHIEVEMENTS ==")
				for _, a := range cat.Achievements {
					fmt.Printf("%-20s %-24s %s\n", a.ID, a.Name, a.Description)
				}
			default:
				return fmt.Errorf("unknown catalogue %q", args[0])
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of YAML overrides layered over the built-in data")
	return cmd
}
