package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/ledger"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <resume.txt>",
	Short: "Merge a resume file into the configured ledger",
	Long: "import reads a TSV resume file and merges it into the configured ledger, " +
		"for example to move an existing run onto the sqlite or bolt backend. " +
		"Messages already SUCCESS in the ledger stay SUCCESS.",
	Args: cobra.ExactArgs(1),
	RunE: importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be merged without writing")
	rootCmd.AddCommand(importCmd)
}

func importAction(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	resumePath := args[0]

	// Opening a missing file as a ledger would create it.
	if _, err := os.Stat(resumePath); err != nil {
		return fmt.Errorf("read resume file: %w", err)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if samePath(resumePath, cfg.Ledger.Path) {
		return errors.New("resume file is the configured ledger, nothing to merge")
	}

	ctx := cmd.Context()
	in, err := ledger.Open(ctx, ledger.Config{Backend: ledger.BackendTSV, Path: resumePath})
	if err != nil {
		return fmt.Errorf("open resume file: %w", err)
	}
	defer func() { _ = in.Close() }()

	records, err := in.Records(ctx)
	if err != nil {
		return fmt.Errorf("read resume file: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No records found in resume file.")
		return nil
	}

	counts := ledger.Counts(records)
	if importDryRun {
		fmt.Fprintf(out, "Would merge %d records into %s (%s):\n", len(records), cfg.Ledger.Path, cfg.Ledger.Backend)
		for _, s := range []ledger.Status{ledger.StatusSuccess, ledger.StatusFailed, ledger.StatusSkipped, ledger.StatusPending} {
			fmt.Fprintf(out, "  %-8s %d\n", s, counts[s])
		}
		return nil
	}

	dst, err := ledger.Open(ctx, ledger.Config{Backend: cfg.Ledger.Backend, Path: cfg.Ledger.Path})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = dst.Close() }()

	n, err := ledger.Import(ctx, dst, records)
	if err != nil {
		return fmt.Errorf("import after %d records: %w", n, err)
	}
	fmt.Fprintf(out, "Merged %d records into %s.\n", n, cfg.Ledger.Path)
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
