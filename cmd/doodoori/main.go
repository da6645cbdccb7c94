package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "doodoori",
		Short: "Doodoori - autonomous task loop for Claude Code",
		Long: `Doodoori runs Claude Code in a completion-checked loop.
It compiles markdown task specs, validates their task graphs, and
iterates the agent until the completion promise appears, the iteration
cap is hit, or the budget runs out.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
