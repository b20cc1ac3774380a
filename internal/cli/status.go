package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/ledger"
	"github.com/ppiankov/tgmigrate/internal/report"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger totals and messages that still need work",
	RunE:  statusAction,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "terminal", "output format: terminal, json or markdown")
	rootCmd.AddCommand(statusCmd)
}

func statusAction(cmd *cobra.Command, _ []string) error {
	formatter, ok := report.New(statusFormat, !noColor && isTerminal(cmd.OutOrStdout()))
	if !ok {
		return fmt.Errorf("unknown format %q (want terminal, json or markdown)", statusFormat)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	records, err := loadRecords(cmd, cfg)
	if err != nil {
		return err
	}

	return formatter.Format(cmd.OutOrStdout(), report.Input{
		LedgerPath: cfg.Ledger.Path,
		Backend:    cfg.Ledger.Backend,
		Records:    records,
	})
}

// loadRecords reads every record of the configured ledger. A ledger that
// does not exist yet is reported as an error rather than created.
func loadRecords(cmd *cobra.Command, cfg *config.Config) ([]ledger.Record, error) {
	if _, err := os.Stat(cfg.Ledger.Path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no ledger at %s (run tgmigrate migrate first)", cfg.Ledger.Path)
	}

	l, err := ledger.Open(cmd.Context(), ledger.Config{
		Backend: cfg.Ledger.Backend,
		Path:    cfg.Ledger.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	records, err := l.Records(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return records, nil
}
