package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/tgmigrate/internal/ledger"
)

// MarkdownFormatter formats a status report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the report as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, input Input) error {
	g := group(input.Records)

	fmt.Fprintf(w, "# tgmigrate status\n\n")
	fmt.Fprintf(w, "Ledger `%s` (%s), %d messages\n\n", input.LedgerPath, input.Backend, len(input.Records))

	if len(input.Records) == 0 {
		fmt.Fprintln(w, "Ledger is empty.")
		return nil
	}

	fmt.Fprintln(w, "| Status | Count |")
	fmt.Fprintln(w, "|---|---|")
	for _, s := range []ledger.Status{ledger.StatusSuccess, ledger.StatusFailed, ledger.StatusSkipped, ledger.StatusPending} {
		fmt.Fprintf(w, "| %s | %d |\n", s, g.counts[s])
	}
	fmt.Fprintln(w)

	if len(g.failed) > 0 {
		fmt.Fprintf(w, "## Failed (%d)\n\n", len(g.failed))
		listed, more := head(g.failed)
		for _, r := range listed {
			fmt.Fprintf(w, "- **%d** %s %s: `%s`\n", r.ID, r.Kind, escape(r.Preview), r.Error)
		}
		if more > 0 {
			fmt.Fprintf(w, "- … and %d more\n", more)
		}
		fmt.Fprintln(w)
	}

	if len(g.pending) > 0 {
		fmt.Fprintf(w, "## Pending (%d)\n\n", len(g.pending))
		listed, more := head(g.pending)
		for _, r := range listed {
			fmt.Fprintf(w, "- **%d** %s %s\n", r.ID, r.Kind, escape(r.Preview))
		}
		if more > 0 {
			fmt.Fprintf(w, "- … and %d more\n", more)
		}
		fmt.Fprintln(w)
	}

	return nil
}

var mdEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)

func escape(s string) string {
	return mdEscaper.Replace(s)
}
