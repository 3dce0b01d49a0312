// Package cmd provides CLI commands for chain-sync.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chain-sync",
	Short: "Reconcile on-chain token transfers into Odoo bank statements",
	Long: `chain-sync imports ERC-20 token transfers of a wallet into an Odoo
bank journal as statement lines, one bank statement per month.

It supports:
- Idempotent imports keyed by transaction hash, log index and token
- Automatic counterparty (partner + bank account) creation
- Closing statements of past months with a computed closing balance
- Incremental fetches from the last imported block
- Dry-run mode: reads hit Odoo, writes are only logged

Example:
  chain-sync sync --wallet 0x... --token 0x... --symbol USDC
  chain-sync sync --targets targets.yaml --dry-run
  chain-sync close --targets targets.yaml
  chain-sync stats`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug || os.Getenv("DEBUG") == "true" {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and runs it with ctx.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitOnError logs err and exits the process when err is set.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
