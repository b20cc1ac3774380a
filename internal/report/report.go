// Package report renders the ledger state for the status command.
package report

import (
	"io"

	"github.com/ppiankov/tgmigrate/internal/ledger"
)

// maxListed caps how many failed or pending messages are listed.
const maxListed = 50

// Input is everything a formatter needs.
type Input struct {
	LedgerPath string
	Backend    string
	Records    []ledger.Record
}

// Formatter writes a status report to w.
type Formatter interface {
	Format(w io.Writer, input Input) error
}

// New returns the formatter for a format name.
func New(format string, color bool) (Formatter, bool) {
	switch format {
	case "terminal", "":
		return NewTerminal(color), true
	case "json":
		return NewJSON(), true
	case "markdown", "md":
		return NewMarkdown(), true
	}
	return nil, false
}

type groups struct {
	counts  map[ledger.Status]int
	failed  []ledger.Record
	pending []ledger.Record
}

func group(records []ledger.Record) groups {
	g := groups{counts: ledger.Counts(records)}
	for _, r := range records {
		switch r.Status {
		case ledger.StatusFailed:
			g.failed = append(g.failed, r)
		case ledger.StatusPending:
			g.pending = append(g.pending, r)
		}
	}
	return g
}

func head(records []ledger.Record) ([]ledger.Record, int) {
	if len(records) <= maxListed {
		return records, 0
	}
	return records[:maxListed], len(records) - maxListed
}
