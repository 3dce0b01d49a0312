package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opencollective/odoo-web3/pkg/reconcile"
)

// closeCmd represents the close command.
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close bank statements of past months",
	Long: `Close every open bank statement of a past month without importing anything.

Use this to recover after a run whose closing step failed. Closing balances
are always recomputed from the statement lines. With --restate-from, closed
statements from that month on are recomputed and posted again first.

Example:
  chain-sync close --wallet 0x... --token 0x... --symbol USDC
  chain-sync close --targets targets.yaml --restate-from 2024-09`,
	Run: runClose,
}

var restateFrom string

func init() {
	addTargetFlags(closeCmd)
	closeCmd.Flags().StringVar(&restateFrom, "restate-from", "", "Recompute closed statements from this month (YYYY-MM)")
}

func runClose(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	logger := slog.Default()

	cfg := loadConfig()

	targets, err := resolveTargets(cfg)
	exitOnError(err, "invalid targets")

	gateway, _, release, err := connectLedger(ctx, cfg, logger)
	exitOnError(err, "failed to open ledger")
	defer release()

	failed := 0
	for _, t := range targets {
		journal, err := reconcile.ResolveJournal(ctx, gateway, reconcile.Target{
			Wallet:    t.Wallet,
			Token:     t.Token,
			Symbol:    t.Symbol,
			JournalID: t.JournalID,
		}, logger)
		if err != nil {
			logger.Error("Failed to resolve journal", "wallet", t.Wallet, "symbol", t.Symbol, "error", err)
			failed++
			continue
		}

		engine := reconcile.New(gateway, logger, nil)
		fmt.Printf("\n=== %s (journal %d) ===\n", journal.Code, journal.ID)

		if restateFrom != "" {
			restated, err := engine.RestateJournal(ctx, journal, restateFrom)
			for _, p := range restated.Closed {
				fmt.Printf("Restated %s (closing balance %s)\n", p.Name, p.ClosingBalance.StringFixed(2))
			}
			if err != nil {
				fmt.Printf("Restatement error: %v\n", err)
				failed++
				continue
			}
		}

		result, err := engine.CloseJournal(ctx, journal)
		for _, closed := range result.Closed {
			fmt.Printf("Closed %s (closing balance %s)\n", closed.Name, closed.ClosingBalance.StringFixed(2))
		}
		for month, closeErr := range result.Failed {
			fmt.Printf("Failed to close %s: %v\n", month, closeErr)
		}
		if err != nil || len(result.Failed) > 0 {
			failed++
		}
	}

	if failed > 0 {
		exitOnError(fmt.Errorf("%d of %d targets not fully closed", failed, len(targets)), "close incomplete")
	}
}
