package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opencollective/odoo-web3/pkg/chain"
	"github.com/opencollective/odoo-web3/pkg/config"
	"github.com/opencollective/odoo-web3/pkg/db"
	"github.com/opencollective/odoo-web3/pkg/explorer"
	"github.com/opencollective/odoo-web3/pkg/mirror"
	"github.com/opencollective/odoo-web3/pkg/pathutil"
	"github.com/opencollective/odoo-web3/pkg/reconcile"
)

var (
	fromBlock int64
	toBlock   int64
	noMirror  bool
)

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import token transfers into Odoo bank statements",
	Long: `Import token transfers of one or more (wallet, token) targets into Odoo.

This command:
1. Resolves the bank journal of each target (creating it by code when needed)
2. Fetches transfers from the block explorer, starting after the last imported block
3. Creates one statement line per new transfer in the statement of its month
4. Closes statements of past months and opens the current one
5. Records the run in the local SQLite history and mirrors lines to Beancount

Example:
  chain-sync sync --wallet 0x... --token 0x... --symbol USDC --journal 7
  chain-sync sync --targets targets.yaml --from-block 19000000
  chain-sync sync --targets targets.yaml --dry-run`,
	Run: runSync,
}

func init() {
	addTargetFlags(syncCmd)
	syncCmd.Flags().Int64Var(&fromBlock, "from-block", 0, "First block to fetch (default: after the last imported block)")
	syncCmd.Flags().Int64Var(&toBlock, "to-block", 0, "Last block to fetch (default: latest)")
	syncCmd.Flags().BoolVar(&noMirror, "no-mirror", false, "Do not write the Beancount mirror")
}

func runSync(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	logger := slog.Default()
	logger.Info("Starting sync", "dry_run", dryRun)

	cfg := loadConfig()

	targets, err := resolveTargets(cfg)
	exitOnError(err, "invalid targets")

	pathResolver := pathutil.New(pathutil.Config{
		DataRoot:     cfg.Paths.DataRoot,
		DatabasePath: cfg.Paths.DBPath,
		MirrorRoot:   cfg.Paths.MirrorRoot,
	})

	dbPath := pathResolver.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")
	defer conn.Close()

	history := db.NewHistory(conn)

	mapper := mirror.DefaultMapper()
	if cfg.Paths.AccountsFile != "" {
		mapper, err = mirror.NewMapper(cfg.Paths.AccountsFile)
		exitOnError(err, "failed to load account mapping")
	}
	mirrorRepo := mirror.NewFileSystemRepository(pathResolver)
	if !dryRun && !noMirror {
		slog.Debug("Mirroring lines", "root", pathResolver.GetMirrorRoot())
	}

	gateway, dry, release, err := connectLedger(ctx, cfg, logger)
	exitOnError(err, "failed to open ledger")
	defer release()

	source := explorer.NewClient(explorer.ClientConfig{
		APIURL:   cfg.Explorer.APIURL,
		APIKey:   cfg.Explorer.APIKey,
		ChainID:  cfg.Explorer.ChainID,
		PageSize: cfg.Explorer.PageSize,
		MinDelay: cfg.Explorer.MinDelay,
		Logger:   logger,
	})

	failedTargets := 0
	for _, t := range targets {
		code := reconcile.JournalCode(t.Symbol, t.Wallet)
		tlog := logger.With("target", code)

		blocks, err := blockRange(ctx, history, t)
		if err != nil {
			tlog.Error("Failed to read block cursor", "error", err)
			failedTargets++
			continue
		}

		run, err := history.StartRun(ctx, t.Wallet, t.Token, code, dryRun)
		exitOnError(err, "failed to record run")

		var sinks []reconcile.LineSink
		if !dryRun {
			sinks = append(sinks, history.Sink(run))
			if !noMirror {
				sinks = append(sinks, mirror.NewWriter(mirrorRepo, mapper, code))
			}
		}

		engine := reconcile.New(gateway, tlog, nil, reconcile.WithSinks(sinks...))
		report, err := engine.Sync(ctx, source, reconcile.Target{
			Wallet:    t.Wallet,
			Token:     t.Token,
			Symbol:    t.Symbol,
			JournalID: t.JournalID,
			Blocks:    blocks,
		})

		summary := db.RunSummary{Err: err}
		if report != nil {
			summary.Created, summary.Skipped, summary.Failed = report.Totals()
			summary.LastBlock = report.LastBlock
			printReport(report)
			if err == nil && !dryRun && !settleRestatement(ctx, history, engine, report, tlog) {
				failedTargets++
			}
		}
		if err := history.FinishRun(context.WithoutCancel(ctx), run, summary); err != nil {
			tlog.Error("Failed to record run end", "error", err)
		}

		if err != nil {
			tlog.Error("Sync failed", "error", err)
			failedTargets++
		}
	}

	if dry != nil {
		creates, writes, posts := dry.Counts()
		fmt.Printf("[DRY RUN] Suppressed %d creates, %d writes, %d posts\n", creates, writes, posts)
	}

	if failedTargets > 0 {
		exitOnError(fmt.Errorf("%d of %d targets failed", failedTargets, len(targets)), "sync incomplete")
	}

	slog.Info("Sync completed", "targets", len(targets))
}

// settleRestatement keeps closed periods consistent across runs. A restatement that failed
// in this run is remembered; one pending from an earlier run is retried. It reports whether
// nothing is left pending.
func settleRestatement(ctx context.Context, history *db.History, engine *reconcile.Engine, report *reconcile.Report, logger *slog.Logger) bool {
	code := report.Journal.Code

	if report.RestateErr != nil {
		if err := history.MarkRestate(ctx, code, report.RestateFrom()); err != nil {
			logger.Error("Failed to record pending restatement", "error", err)
		}
		return false
	}

	pending, err := history.PendingRestate(ctx, code)
	if err != nil {
		logger.Error("Failed to read pending restatement", "error", err)
		return false
	}
	if pending == "" {
		return true
	}

	logger.Info("Retrying pending restatement", "from", pending)
	result, err := engine.RestateJournal(ctx, report.Journal, pending)
	for _, restated := range result.Closed {
		fmt.Printf("Restated %s (closing balance %s)\n", restated.Name, restated.ClosingBalance.StringFixed(2))
	}
	if err != nil {
		return false
	}
	if err := history.ClearRestate(ctx, code); err != nil {
		logger.Error("Failed to clear pending restatement", "error", err)
		return false
	}
	return true
}

// blockRange picks the fetch window of a target: explicit flags first, then the block
// after the cursor, then the target's start block.
func blockRange(ctx context.Context, history *db.History, t config.Target) (*chain.BlockRange, error) {
	blocks := &chain.BlockRange{From: fromBlock, To: toBlock}
	if fromBlock > 0 {
		return blocks, nil
	}

	last, err := history.LastBlock(ctx, t.Wallet, t.Token)
	if err != nil {
		return nil, err
	}
	switch {
	case last > 0:
		blocks.From = last + 1
	default:
		blocks.From = t.StartBlock
	}
	return blocks, nil
}

func printReport(report *reconcile.Report) {
	fmt.Printf("\n=== %s (journal %d) ===\n", report.Journal.Code, report.Journal.ID)
	fmt.Printf("Transfers fetched: %d\n", report.Events)
	fmt.Printf("%-9s %8s %8s %8s %8s\n", "Month", "Created", "Late", "Skipped", "Failed")
	for _, key := range report.MonthKeys() {
		mr := report.Months[key]
		fmt.Printf("%-9s %8d %8d %8d %8d\n", key, mr.Created, mr.Late, mr.Skipped, mr.Failed)
		if mr.Err != nil {
			fmt.Printf("  period error: %v\n", mr.Err)
		}
	}

	for _, restated := range report.Restated.Closed {
		fmt.Printf("Restated %s (closing balance %s)\n", restated.Name, restated.ClosingBalance.StringFixed(2))
	}
	if report.RestateErr != nil {
		fmt.Printf("Restatement error: %v\n", report.RestateErr)
	}

	for _, closed := range report.Sweep.Closed {
		fmt.Printf("Closed %s (closing balance %s)\n", closed.Name, closed.ClosingBalance.StringFixed(2))
	}
	for month, err := range report.Sweep.Failed {
		fmt.Printf("Failed to close %s: %v\n", month, err)
	}
	if report.SweepErr != nil {
		fmt.Printf("Period maintenance error: %v\n", report.SweepErr)
	}
	fmt.Println()
}
