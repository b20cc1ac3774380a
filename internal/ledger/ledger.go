// Package ledger keeps the durable per-message transfer log that makes a
// migration resumable. Every message is recorded PENDING before it is sent and
// finalized afterwards, so the ledger lists everything ever discovered, not
// only what was delivered.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/tgmigrate/internal/source"
)

// Status is the transfer state of one message.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Backend names accepted by Open.
const (
	BackendTSV    = "tsv"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

const (
	previewMaxRunes = 60
	noTextPreview   = "(no text)"
	timeLayout      = "2006-01-02 15:04:05"
)

// Header is the fixed column layout of the TSV ledger and of Export.
var Header = []string{"MessageID", "Timestamp", "Type", "Status", "Preview", "Error"}

// ErrUnknownID is returned by UpdateStatus for a message that was never
// recorded pending.
var ErrUnknownID = errors.New("message not recorded")

// Record is one ledger row.
type Record struct {
	ID           int64
	DiscoveredAt time.Time
	Kind         source.Kind
	Status       Status
	Preview      string
	Error        string
}

// Ledger is the durable transfer log. A ledger has a single writer.
type Ledger interface {
	// Init creates the backing store if absent. Idempotent.
	Init(ctx context.Context) error
	// RecordPending stores a PENDING record for it unless one already exists.
	RecordPending(ctx context.Context, it source.Item) error
	// UpdateStatus finalizes a recorded message. errText is kept only for FAILED.
	UpdateStatus(ctx context.Context, id int64, status Status, errText string) error
	// CompletedIDs returns the ids whose status is SUCCESS.
	CompletedIDs(ctx context.Context) (map[int64]struct{}, error)
	// Records returns every record ordered by id.
	Records(ctx context.Context) ([]Record, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Path    string
	// Redact, if set, is applied to message text before the preview is cut.
	Redact func(string) string
	// Now overrides the discovery clock.
	Now func() time.Time
}

// Open opens (and initializes) the ledger described by cfg.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("ledger: path is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var (
		l   Ledger
		err error
	)
	switch cfg.Backend {
	case BackendTSV, "":
		l = newFileLedger(cfg)
	case BackendSQLite:
		l, err = openSQLite(ctx, cfg)
	case BackendBolt:
		l, err = openBolt(cfg)
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q (want tsv, sqlite or bolt)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Init(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Next returns the status a record moves to when status is requested while it
// holds from. SUCCESS is terminal and nothing returns to PENDING.
func Next(from, to Status) Status {
	if from == StatusSuccess {
		return StatusSuccess
	}
	if to == StatusPending && from != "" {
		return from
	}
	return to
}

// Preview returns the audit snippet for a message text: single line, at most
// 60 runes, "(no text)" when empty.
func Preview(text string) string {
	raw := strings.Join(strings.Fields(text), " ")
	if raw == "" {
		return noTextPreview
	}
	runes := []rune(raw)
	if len(runes) <= previewMaxRunes {
		return raw
	}
	return string(runes[:previewMaxRunes-1]) + "…"
}

func newRecord(cfg Config, it source.Item) Record {
	text := it.Text
	if cfg.Redact != nil {
		text = cfg.Redact(text)
	}
	kind := it.Kind
	if kind == "" {
		kind = source.KindOther
	}
	return Record{
		ID:           it.ID,
		DiscoveredAt: cfg.Now(),
		Kind:         kind,
		Status:       StatusPending,
		Preview:      Preview(text),
	}
}

// finalize applies a status update to r following the monotonic rules.
// A refused transition leaves the record, including its error, unchanged.
func finalize(r *Record, status Status, errText string) {
	if Next(r.Status, status) != status {
		return
	}
	r.Status = status
	if status == StatusFailed {
		r.Error = errText
	} else {
		r.Error = ""
	}
}

func validateUpdate(id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("ledger: invalid status %q for message %d", status, id)
	}
	return nil
}

func toRow(r Record) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.DiscoveredAt.Format(timeLayout),
		string(r.Kind),
		string(r.Status),
		r.Preview,
		r.Error,
	}
}

func fromRow(row []string) (Record, error) {
	if len(row) < 4 {
		return Record{}, fmt.Errorf("expected %d columns, got %d", len(Header), len(row))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid message id %q", row[0])
	}
	status := Status(strings.TrimSpace(row[3]))
	if !status.Valid() {
		return Record{}, fmt.Errorf("invalid status %q", row[3])
	}

	r := Record{
		ID:     id,
		Kind:   source.ParseKind(strings.TrimSpace(row[2])),
		Status: status,
	}
	if ts, err := time.ParseInLocation(timeLayout, row[1], time.Local); err == nil {
		r.DiscoveredAt = ts
	}
	if len(row) > 4 {
		r.Preview = row[4]
	}
	if len(row) > 5 {
		r.Error = row[5]
	}
	return r, nil
}

func newTSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// Export writes records in the TSV ledger format, header first.
func Export(w io.Writer, records []Record) error {
	cw := newTSVWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(toRow(r)); err != nil {
			return fmt.Errorf("write record %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}

// Counts tallies records by status.
func Counts(records []Record) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, r := range records {
		counts[r.Status]++
	}
	return counts
}

// Import merges records into dst, one pending write and one status update
// each, so the monotonic rules decide conflicts with what dst already holds.
// Discovery times are not carried over.
func Import(ctx context.Context, dst Ledger, records []Record) (int, error) {
	n := 0
	for _, r := range records {
		it := source.Item{ID: r.ID, Kind: r.Kind, Text: r.Preview}
		if err := dst.RecordPending(ctx, it); err != nil {
			return n, err
		}
		if err := dst.UpdateStatus(ctx, r.ID, r.Status, r.Error); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
