package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/ledger"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger in resume-file (TSV) format",
	RunE:  exportAction,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func exportAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	records, err := loadRecords(cmd, cfg)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := ledger.Export(w, records); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", len(records), exportOut)
	}
	return nil
}
