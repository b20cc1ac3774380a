package report

import (
	"fmt"
	"io"

	"github.com/ppiankov/tgmigrate/internal/ledger"
)

// TerminalFormatter formats a status report for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes totals by status, then failed and pending messages.
func (f *TerminalFormatter) Format(w io.Writer, input Input) error {
	g := group(input.Records)

	header := fmt.Sprintf("tgmigrate — %s (%s), %d messages", input.LedgerPath, input.Backend, len(input.Records))
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(input.Records) == 0 {
		fmt.Fprintln(w, "Ledger is empty. Run 'tgmigrate migrate' first.")
		return nil
	}

	fmt.Fprintln(w, f.green(fmt.Sprintf("  ✓ Success : %d", g.counts[ledger.StatusSuccess])))
	fmt.Fprintln(w, f.red(fmt.Sprintf("  ✗ Failed  : %d", g.counts[ledger.StatusFailed])))
	fmt.Fprintln(w, f.yellow(fmt.Sprintf("  ⟳ Skipped : %d", g.counts[ledger.StatusSkipped])))
	fmt.Fprintln(w, f.dim(fmt.Sprintf("  … Pending : %d", g.counts[ledger.StatusPending])))

	if len(g.failed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, f.red(f.bold(fmt.Sprintf("--- Failed (%d) ---", len(g.failed)))))
		listed, more := head(g.failed)
		for _, r := range listed {
			fmt.Fprintf(w, "  %s %s %s\n", f.bold(fmt.Sprintf("[%d]", r.ID)), r.Kind, r.Preview)
			fmt.Fprintf(w, "      %s\n", f.dim(r.Error))
		}
		if more > 0 {
			fmt.Fprintln(w, f.dim(fmt.Sprintf("  … and %d more", more)))
		}
	}

	if len(g.pending) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, f.yellow(f.bold(fmt.Sprintf("--- Pending (%d) ---", len(g.pending)))))
		fmt.Fprintln(w, f.dim("  interrupted or not yet attempted; the next run retries them"))
		listed, more := head(g.pending)
		for _, r := range listed {
			fmt.Fprintf(w, "  [%d] %s %s\n", r.ID, r.Kind, r.Preview)
		}
		if more > 0 {
			fmt.Fprintln(w, f.dim(fmt.Sprintf("  … and %d more", more)))
		}
	}

	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) red(s string) string {
	if !f.color {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
