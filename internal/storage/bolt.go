package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"logsift/internal/parser"
)

var (
	bucketRecords   = []byte("records")
	bucketRecordIDs = []byte("record_ids") // id -> records key
	bucketAppState  = []byte("app_state")
)

// keyLayout is fixed width so byte order of keys equals time order.
const keyLayout = "2006-01-02T15:04:05.000000000Z"

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// BoltStore implements the Store interface using bbolt.
type BoltStore struct {
	db       *bolt.DB
	now      func() time.Time
	readOnly bool
}

// NewBoltStore opens (or creates) a bbolt database at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketRecordIDs, bucketAppState} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	log.Printf("BoltStore: opened %s", path)
	store := &BoltStore{db: db, now: time.Now}

	if err := store.checkAndMarkRunning(); err != nil {
		log.Printf("BoltStore: warning, failed to process app state: %v", err)
	}

	return store, nil
}

// OpenReadOnly opens an existing database without touching app state.
// Writes on the returned store fail.
func OpenReadOnly(path string) (*BoltStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return &BoltStore{db: db, now: time.Now, readOnly: true}, nil
}

// ── App State (Heartbeat) ────────────────────────────────────────

func (s *BoltStore) checkAndMarkRunning() error {
	var unclean bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAppState)
		unclean = string(b.Get([]byte("status"))) == "running"
		return b.Put([]byte("status"), []byte("running"))
	})
	if err != nil || !unclean {
		return err
	}

	// The previous run died without MarkStopped. Record it like any other
	// system line so it shows up in queries and stats.
	log.Println("BoltStore: unclean shutdown detected, previous run was killed or lost power")
	line := fmt.Sprintf("%s logsift[%d]: CRITICAL unclean shutdown detected, previous run did not stop cleanly",
		s.now().Format("2006-01-02T15:04:05-07:00"), os.Getpid())
	entry := parser.ParseLogLine(line)
	rec := &Record{
		Source:   "logsift",
		Shape:    parser.ClassifyLine(line).Kind.String(),
		Entry:    entry,
		Category: parser.CategorizeLogEntry(entry),
	}
	if err := s.SaveRecord(rec); err != nil {
		return err
	}
	log.Printf("BoltStore: recorded unclean shutdown as %s", rec.ID)
	return nil
}

// MarkStopped should be called during a graceful shutdown
func (s *BoltStore) MarkStopped() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		log.Println("BoltStore: marking state as stopped (clean exit)")
		return tx.Bucket(bucketAppState).Put([]byte("status"), []byte("stopped"))
	})
}

// ── Records ──────────────────────────────────────────────────────

// SaveRecord assigns ID and ObservedAt when empty and stores rec.
func (s *BoltStore) SaveRecord(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = s.now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	key := recordKey(rec.ObservedAt, rec.ID)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketRecordIDs).Put([]byte(rec.ID), key)
	})
}

func (s *BoltStore) GetRecord(id string) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketRecordIDs).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket(bucketRecords).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords returns matching records newest first.
func (s *BoltStore) ListRecords(opts ListOpts) (*ListResult[*Record], error) {
	opts = normalizeOpts(opts)

	var all []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // skip corrupt entries
			}
			if opts.matches(&rec) {
				all = append(all, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paginate(all, opts), nil
}

func (o ListOpts) matches(rec *Record) bool {
	if o.Level != "" && !strings.EqualFold(rec.Level(), o.Level) {
		return false
	}
	if o.Category != "" && !rec.Category.Has(strings.ToLower(o.Category)) {
		return false
	}
	if o.Service != "" && !strings.EqualFold(rec.Service(), o.Service) {
		return false
	}
	if o.Tag != "" && !containsFold(rec.Category.Tags, o.Tag) {
		return false
	}
	if o.Source != "" && rec.Source != o.Source {
		return false
	}
	if !o.Since.IsZero() && rec.ObservedAt.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && rec.ObservedAt.After(o.Until) {
		return false
	}
	return true
}

// ForEach calls fn for every record, oldest first. Iteration stops at the
// first error, which is returned.
func (s *BoltStore) ForEach(fn func(*Record) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			return fn(&rec)
		})
	})
}

// DeleteOldRecords removes records observed more than olderThan ago.
func (s *BoltStore) DeleteOldRecords(olderThan time.Duration) (int, error) {
	cutoff := []byte(s.now().Add(-olderThan).UTC().Format(keyLayout))
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		ids := tx.Bucket(bucketRecordIDs)

		var toDelete [][]byte
		c := records.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			toDelete = append(toDelete, key)
		}

		for _, k := range toDelete {
			if err := records.Delete(k); err != nil {
				return err
			}
			if i := bytes.LastIndexByte(k, '_'); i >= 0 {
				if err := ids.Delete(k[i+1:]); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})

	if deleted > 0 {
		log.Printf("BoltStore: pruned %d records older than %s", deleted, olderThan)
	}
	return deleted, err
}

// ── Stats ────────────────────────────────────────────────────────

func (s *BoltStore) GetStats() (*RecordStats, error) {
	stats := &RecordStats{
		ByLevel:    map[string]int{},
		ByCategory: map[string]int{},
		BySource:   map[string]int{},
	}
	svcCounts := map[string]int{}
	sigCounts := map[string]int{}

	err := s.ForEach(func(rec *Record) error {
		stats.Total++
		stats.ByLevel[rec.Level()]++
		stats.BySource[rec.Source]++
		for _, c := range rec.Category.Categories {
			stats.ByCategory[c]++
		}
		if len(rec.Category.Categories) == 0 {
			stats.ByCategory[parser.CategoryGeneral]++
		}
		if rec.Anomaly != "" {
			stats.Anomalies++
		}
		svcCounts[rec.Service()]++
		if rec.Entry != nil {
			if sig, ok := rec.Entry.Text(parser.FieldSignalName); ok {
				sigCounts[sig]++
			}
		}

		t := rec.ObservedAt
		if stats.Oldest == nil {
			stats.Oldest = &t
		}
		stats.Newest = &t
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.TopService = topKey(svcCounts)
	stats.TopSignal = topKey(sigCounts)
	return stats, nil
}

// ── Lifecycle ────────────────────────────────────────────────────

func (s *BoltStore) Close() error {
	if s.readOnly {
		return s.db.Close()
	}
	log.Println("BoltStore: closing database")
	if err := s.MarkStopped(); err != nil {
		log.Printf("BoltStore: mark stopped: %v", err)
	}
	return s.db.Close()
}

// ── Helpers ──────────────────────────────────────────────────────

func recordKey(at time.Time, id string) []byte {
	return []byte(at.UTC().Format(keyLayout) + "_" + id)
}

func normalizeOpts(opts ListOpts) ListOpts {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	return opts
}

func paginate[T any](all []T, opts ListOpts) *ListResult[T] {
	total := len(all)
	totalPages := (total + opts.PageSize - 1) / opts.PageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.PageSize
	if start >= total {
		return &ListResult[T]{Items: []T{}, Total: total, Page: opts.Page, PageSize: opts.PageSize, TotalPages: totalPages}
	}
	end := start + opts.PageSize
	if end > total {
		end = total
	}

	return &ListResult[T]{
		Items:      all[start:end],
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
	}
}

// topKey returns the key with the highest count, ties broken by name.
func topKey(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func containsFold(s []string, v string) bool {
	for _, x := range s {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
