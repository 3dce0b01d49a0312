package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencollective/odoo-web3/pkg/config"
	"github.com/opencollective/odoo-web3/pkg/db"
	"github.com/opencollective/odoo-web3/pkg/mirror"
	"github.com/opencollective/odoo-web3/pkg/pathutil"
	"github.com/opencollective/odoo-web3/pkg/period"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display import statistics",
	Long: `Display statistics from the local import history.

Shows:
- Total number of runs (and dry runs)
- Total number of imported statement lines
- Total number of failed events
- Last run timestamp

With --month, also lists the lines imported for that month.

Example:
  chain-sync stats
  chain-sync stats --month 2024-09`,
	Run: runStats,
}

var statsMonth string

func init() {
	statsCmd.Flags().StringVar(&statsMonth, "month", "", "List the lines imported for this month (YYYY-MM)")
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	exitOnError(err, "failed to load configuration")

	if err := cfg.Validate([]string{"paths", "dataRoot"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

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
	stats, err := history.GetStats(cmd.Context())
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Import Statistics ===")
	fmt.Printf("Data root:       %s\n", pathResolver.GetDataRoot())
	fmt.Printf("Total runs:      %d (%d dry runs)\n", stats.TotalRuns, stats.DryRuns)
	fmt.Printf("Imported lines:  %d\n", stats.TotalLines)
	fmt.Printf("Failed events:   %d\n", stats.FailedEvents)

	if stats.LastRun.Valid {
		fmt.Printf("Last run:        %s\n", stats.LastRun.String)
	} else {
		fmt.Printf("Last run:        (never)\n")
	}

	if statsMonth != "" {
		if err := period.ValidateMonthKey(statsMonth); err != nil {
			exitOnError(err, "invalid --month")
		}

		lines, err := history.LinesByMonth(cmd.Context(), statsMonth)
		exitOnError(err, "failed to list lines")

		fmt.Printf("\n=== Lines of %s ===\n", statsMonth)
		for _, line := range lines {
			fmt.Printf("%s  %-8d %24s  %s\n", line.Date, line.JournalID, line.Amount, line.DedupKey)
		}
		fmt.Printf("%d line(s)\n", len(lines))

		repo := mirror.NewFileSystemRepository(pathResolver)
		months, err := repo.MonthFilesInYear(statsMonth[:4])
		exitOnError(err, "failed to list mirror files")
		fmt.Printf("Mirrored months of %s: %s\n", statsMonth[:4], strings.Join(months, ", "))

		content, err := repo.ReadMonthFile(statsMonth)
		exitOnError(err, "failed to read mirror file")
		fmt.Printf("Mirror transactions of %s: %d\n", statsMonth, strings.Count(content, " * \""))
	}

	fmt.Println()
}
