package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/tgmigrate/internal/source"
	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// boltRecord is the JSON value stored per message.
type boltRecord struct {
	DiscoveredAt time.Time `json:"discovered_at"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Preview      string    `json:"preview"`
	Error        string    `json:"error,omitempty"`
}

// BoltLedger stores records in a bbolt file, one key per message id.
// Keys are big-endian so a cursor walks them in id order.
type BoltLedger struct {
	db  *bolt.DB
	cfg Config
}

func openBolt(cfg Config) (*BoltLedger, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create db dir: %w", err)
		}
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}
	return &BoltLedger{db: db, cfg: cfg}, nil
}

// Init creates the records bucket.
func (l *BoltLedger) Init(_ context.Context) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: create bucket: %w", err)
	}
	return nil
}

func idKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// RecordPending stores a PENDING record unless the id is already present.
func (l *BoltLedger) RecordPending(_ context.Context, it source.Item) error {
	r := newRecord(l.cfg, it)
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		key := idKey(r.ID)
		if b.Get(key) != nil {
			return nil
		}
		data, err := json.Marshal(toBolt(r))
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("ledger: record pending %d: %w", it.ID, err)
	}
	return nil
}

// UpdateStatus finalizes one record.
func (l *BoltLedger) UpdateStatus(_ context.Context, id int64, status Status, errText string) error {
	if err := validateUpdate(id, status); err != nil {
		return err
	}
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		key := idKey(id)
		data := b.Get(key)
		if data == nil {
			return ErrUnknownID
		}
		var br boltRecord
		if err := json.Unmarshal(data, &br); err != nil {
			return err
		}
		r := fromBolt(id, br)
		finalize(&r, status, errText)

		out, err := json.Marshal(toBolt(r))
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
	if err != nil {
		return fmt.Errorf("ledger: update %d: %w", id, err)
	}
	return nil
}

// CompletedIDs returns the ids recorded SUCCESS.
func (l *BoltLedger) CompletedIDs(ctx context.Context) (map[int64]struct{}, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{})
	for _, r := range records {
		if r.Status == StatusSuccess {
			ids[r.ID] = struct{}{}
		}
	}
	return ids, nil
}

// Records returns all records ordered by id.
func (l *BoltLedger) Records(_ context.Context) ([]Record, error) {
	var records []Record
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var br boltRecord
			if err := json.Unmarshal(v, &br); err != nil {
				return fmt.Errorf("decode %x: %w", k, err)
			}
			records = append(records, fromBolt(int64(binary.BigEndian.Uint64(k)), br))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: list records: %w", err)
	}
	return records, nil
}

// Close closes the bolt file.
func (l *BoltLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func toBolt(r Record) boltRecord {
	return boltRecord{
		DiscoveredAt: r.DiscoveredAt,
		Kind:         string(r.Kind),
		Status:       string(r.Status),
		Preview:      r.Preview,
		Error:        r.Error,
	}
}

func fromBolt(id int64, br boltRecord) Record {
	return Record{
		ID:           id,
		DiscoveredAt: br.DiscoveredAt,
		Kind:         source.ParseKind(br.Kind),
		Status:       Status(br.Status),
		Preview:      br.Preview,
		Error:        br.Error,
	}
}
