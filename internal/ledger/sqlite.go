package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "embed"

	"github.com/ppiankov/tgmigrate/internal/source"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteLedger stores records in a SQLite database keyed by message id, so
// status updates touch one row.
type SQLiteLedger struct {
	db  *sql.DB
	cfg Config
}

func openSQLite(ctx context.Context, cfg Config) (*SQLiteLedger, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	// One writer; keeps modernc from handing out a second connection mid-run.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: enable wal: %w", err)
	}

	return &SQLiteLedger{db: db, cfg: cfg}, nil
}

// Init applies the schema and records its version.
func (l *SQLiteLedger) Init(ctx context.Context) error {
	return migrate(ctx, l.db)
}

// migrate applies the schema and stamps its version. A database written by a
// newer version is refused.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger: apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("ledger: stamp schema version: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		return fmt.Errorf("ledger: read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("ledger: database schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// RecordPending inserts a PENDING row; an existing row is left untouched.
func (l *SQLiteLedger) RecordPending(ctx context.Context, it source.Item) error {
	r := newRecord(l.cfg, it)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO records (message_id, discovered_at, kind, status, preview, error)
		VALUES (?, ?, ?, ?, ?, '')
		ON CONFLICT(message_id) DO NOTHING
	`,
		r.ID,
		formatTime(r.DiscoveredAt),
		string(r.Kind),
		string(r.Status),
		r.Preview,
	)
	if err != nil {
		return fmt.Errorf("ledger: record pending %d: %w", it.ID, err)
	}
	return nil
}

// UpdateStatus finalizes one row inside a transaction.
func (l *SQLiteLedger) UpdateStatus(ctx context.Context, id int64, status Status, errText string) error {
	if err := validateUpdate(id, status); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin update: %w", err)
	}

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM records WHERE message_id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return fmt.Errorf("ledger: update %d: %w", id, ErrUnknownID)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("ledger: read status %d: %w", id, err)
	}

	r := Record{Status: Status(current)}
	finalize(&r, status, errText)

	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET status = ?, error = ? WHERE message_id = ?",
		string(r.Status), r.Error, id,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("ledger: update %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit update %d: %w", id, err)
	}
	return nil
}

// CompletedIDs returns the ids recorded SUCCESS.
func (l *SQLiteLedger) CompletedIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT message_id FROM records WHERE status = ?", string(StatusSuccess))
	if err != nil {
		return nil, fmt.Errorf("ledger: completed ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ledger: scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate ids: %w", err)
	}
	return ids, nil
}

// Records returns all rows ordered by message id.
func (l *SQLiteLedger) Records(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT message_id, discovered_at, kind, status, preview, error
		FROM records
		ORDER BY message_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			r            Record
			discovered   string
			kind, status string
		)
		if err := rows.Scan(&r.ID, &discovered, &kind, &status, &r.Preview, &r.Error); err != nil {
			return nil, fmt.Errorf("ledger: scan record: %w", err)
		}
		r.Kind = source.ParseKind(kind)
		r.Status = Status(status)
		r.DiscoveredAt, err = parseTime(discovered)
		if err != nil {
			return nil, fmt.Errorf("ledger: parse discovered_at: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate records: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
