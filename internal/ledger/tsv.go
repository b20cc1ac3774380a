package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/tgmigrate/internal/source"
)

// FileLedger is the tab-separated ledger file (resume.txt). It is read once
// into memory; new messages are appended and synced, status updates rewrite
// the file through a temp file and rename so a crash never leaves it torn.
type FileLedger struct {
	cfg     Config
	records []Record // file order
	index   map[int64]int
	loaded  bool
}

func newFileLedger(cfg Config) *FileLedger {
	return &FileLedger{cfg: cfg, index: make(map[int64]int)}
}

// Init writes the header if the file does not exist, then loads it.
func (l *FileLedger) Init(_ context.Context) error {
	if l.loaded {
		return nil
	}

	if dir := filepath.Dir(l.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ledger: create dir: %w", err)
		}
	}

	if _, err := os.Stat(l.cfg.Path); errors.Is(err, os.ErrNotExist) {
		if err := l.rewrite(); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("ledger: stat: %w", err)
	}

	if err := l.load(); err != nil {
		return err
	}
	l.loaded = true
	return nil
}

func (l *FileLedger) load() error {
	f, err := os.Open(l.cfg.Path)
	if err != nil {
		return fmt.Errorf("ledger: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: read header: %w", err)
	}
	if len(header) == 0 || header[0] != Header[0] {
		return fmt.Errorf("ledger: %s: unexpected header %q", l.cfg.Path, header)
	}

	l.records = l.records[:0]
	l.index = make(map[int64]int)

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("ledger: line %d: %w", line, err)
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}
		r, err := fromRow(row)
		if err != nil {
			return fmt.Errorf("ledger: line %d: %w", line, err)
		}

		// Files written by older versions may repeat an id; the first row is
		// the one that was finalized.
		if i, ok := l.index[r.ID]; ok {
			finalize(&l.records[i], r.Status, r.Error)
			continue
		}
		l.index[r.ID] = len(l.records)
		l.records = append(l.records, r)
	}
	return nil
}

// RecordPending appends a PENDING row for it unless the id is already known.
func (l *FileLedger) RecordPending(_ context.Context, it source.Item) error {
	if !l.loaded {
		return errors.New("ledger: not initialized")
	}
	if _, ok := l.index[it.ID]; ok {
		return nil
	}

	r := newRecord(l.cfg, it)
	if err := l.append(r); err != nil {
		return err
	}
	l.index[r.ID] = len(l.records)
	l.records = append(l.records, r)
	return nil
}

func (l *FileLedger) append(r Record) error {
	f, err := os.OpenFile(l.cfg.Path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open for append: %w", err)
	}

	cw := newTSVWriter(f)
	if err := cw.Write(toRow(r)); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: append %d: %w", r.ID, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: append %d: %w", r.ID, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: sync: %w", err)
	}
	return f.Close()
}

// UpdateStatus changes the status of a recorded message and rewrites the file.
func (l *FileLedger) UpdateStatus(_ context.Context, id int64, status Status, errText string) error {
	if err := validateUpdate(id, status); err != nil {
		return err
	}
	i, ok := l.index[id]
	if !ok {
		return fmt.Errorf("ledger: update %d: %w", id, ErrUnknownID)
	}

	before := l.records[i]
	finalize(&l.records[i], status, errText)
	if l.records[i] == before {
		return nil
	}
	if err := l.rewrite(); err != nil {
		l.records[i] = before
		return err
	}
	return nil
}

// rewrite replaces the file with the in-memory records.
func (l *FileLedger) rewrite() error {
	dir := filepath.Dir(l.cfg.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.cfg.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ledger: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := Export(tmp, l.records); err != nil {
		cleanup()
		return fmt.Errorf("ledger: rewrite: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("ledger: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ledger: close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ledger: chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, l.cfg.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ledger: replace: %w", err)
	}
	return nil
}

// CompletedIDs returns the ids recorded SUCCESS.
func (l *FileLedger) CompletedIDs(_ context.Context) (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	for _, r := range l.records {
		if r.Status == StatusSuccess {
			ids[r.ID] = struct{}{}
		}
	}
	return ids, nil
}

// Records returns a copy of all records ordered by id.
func (l *FileLedger) Records(_ context.Context) ([]Record, error) {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op; the file is not held open between writes.
func (l *FileLedger) Close() error {
	return nil
}
