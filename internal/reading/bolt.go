package reading

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore implements SeriesStore on an embedded BoltDB file.
//
// Layout: one bucket per measurement, one nested bucket per series (canonical tag
// string), keys are big-endian unix nanoseconds so cursor order is time order.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

type boltEntry struct {
	Tags   map[string]string `json:"tags"`
	Fields map[string]any    `json:"fields"`
}

// NewBoltStore opens or creates the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{measurementReading, measurementPrice} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// seriesKey renders tags as k=v pairs sorted by key
func seriesKey(tags map[string]string) []byte {
	if len(tags) == 0 {
		return []byte("_")
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return []byte(strings.Join(parts, ","))
}

func timeKey(t time.Time) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	return key
}

// WritePoint stores the point, replacing any point of the same series at the same time
func (b *BoltStore) WritePoint(ctx context.Context, p Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Measurement == "" {
		return fmt.Errorf("measurement is required")
	}
	if p.Time.UnixNano() < 0 {
		return fmt.Errorf("point time %s is before the unix epoch", p.Time)
	}

	data, err := json.Marshal(boltEntry{Tags: p.Tags, Fields: p.Fields})
	if err != nil {
		return fmt.Errorf("marshaling point: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists([]byte(p.Measurement))
		if err != nil {
			return fmt.Errorf("creating measurement bucket: %w", err)
		}
		sb, err := mb.CreateBucketIfNotExists(seriesKey(p.Tags))
		if err != nil {
			return fmt.Errorf("creating series bucket: %w", err)
		}
		return sb.Put(timeKey(p.Time), data)
	})
}

// LastRows returns the newest point of each matching series inside the query window
func (b *BoltStore) LastRows(ctx context.Context, q LastQuery) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := b.now()
	start := timeKey(now.Add(-q.window()))
	end := timeKey(now)

	rows := make([]Row, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket([]byte(q.Measurement))
		if mb == nil {
			return nil
		}
		return mb.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			sb := mb.Bucket(k)
			if sb == nil {
				return nil
			}

			key, value := lastBefore(sb.Cursor(), end)
			if key == nil || bytes.Compare(key, start) < 0 {
				return nil
			}

			var entry boltEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("unmarshaling point: %w", err)
			}
			if !matchTags(entry.Tags, q.Tags) {
				return nil
			}

			row := Row{
				"_time":        time.Unix(0, int64(binary.BigEndian.Uint64(key))).UTC(),
				"_measurement": q.Measurement,
			}
			for tk, tv := range entry.Tags {
				row[tk] = tv
			}
			for fk, fv := range entry.Fields {
				row[fk] = fv
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// lastBefore positions the cursor on the newest key <= end
func lastBefore(c *bbolt.Cursor, end []byte) ([]byte, []byte) {
	k, v := c.Seek(end)
	switch {
	case k == nil:
		return c.Last()
	case bytes.Equal(k, end):
		return k, v
	default:
		return c.Prev()
	}
}

func matchTags(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
