package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opencollective/odoo-web3/pkg/config"
	"github.com/opencollective/odoo-web3/pkg/ledger"
)

// Target flags shared by sync and close.
var (
	targetsFile string
	wallet      string
	token       string
	symbol      string
	journalID   int64
	dryRun      bool
	offline     string
)

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&targetsFile, "targets", "", "YAML file listing targets (default: TARGETS_FILE)")
	cmd.Flags().StringVar(&wallet, "wallet", "", "Wallet address")
	cmd.Flags().StringVar(&token, "token", "", "Token contract address")
	cmd.Flags().StringVar(&symbol, "symbol", "", "Token symbol (e.g. USDC)")
	cmd.Flags().Int64Var(&journalID, "journal", 0, "Odoo journal id (default: look up or create by code)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Dry run mode (reads only, writes are logged)")
	cmd.Flags().StringVar(&offline, "offline-ledger", "", "Use a local ledger file instead of Odoo (default: OFFLINE_LEDGER)")
	cmd.MarkFlagsRequiredTogether("wallet", "token", "symbol")
	cmd.MarkFlagsMutuallyExclusive("targets", "wallet")
}

// loadConfig loads the configuration, applies flag overrides and checks the ledger settings.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	exitOnError(err, "failed to load configuration")

	if offline != "" {
		cfg.Paths.OfflineLedger = offline
	}
	if err := cfg.Validate(cfg.OdooRequired()...); err != nil {
		exitOnError(err, "invalid configuration")
	}
	return cfg
}

// resolveTargets returns the single target given by flags, or the targets file.
func resolveTargets(cfg *config.Config) ([]config.Target, error) {
	if wallet != "" {
		t := config.Target{Wallet: wallet, Token: token, Symbol: symbol, JournalID: journalID}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return []config.Target{t}, nil
	}

	path := targetsFile
	if path == "" {
		path = cfg.Paths.TargetsFile
	}
	if path == "" {
		return nil, errors.New("either --wallet/--token/--symbol or --targets is required")
	}
	return config.LoadTargets(path)
}

// connectLedger opens the ledger: the offline ledger file when configured, Odoo otherwise.
// The gateway is wrapped in a dry-run gateway when requested. The returned func releases
// the ledger.
func connectLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ledger.Gateway, *ledger.DryRun, func(), error) {
	var (
		gateway ledger.Gateway
		release = func() {}
	)

	if path := cfg.Paths.OfflineLedger; path != "" {
		logger.Info("Using offline ledger", "path", path)
		store, err := ledger.OpenBolt(path)
		if err != nil {
			return nil, nil, nil, err
		}
		gateway = store
		release = func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close offline ledger", "error", err)
			}
		}
	} else {
		client := ledger.NewClient(ledger.ClientConfig{
			URL:      cfg.Odoo.URL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			Password: cfg.Odoo.Password,
		})

		logger.Info("Authenticating", "url", cfg.Odoo.URL, "db", cfg.Odoo.Database, "user", cfg.Odoo.Username)
		if err := client.Authenticate(ctx); err != nil {
			return nil, nil, nil, err
		}
		gateway = client
	}

	if !dryRun {
		return gateway, nil, release, nil
	}

	dry := ledger.NewDryRun(gateway, logger)
	return dry, dry, release, nil
}
