package storage

import (
	"errors"
	"time"

	"logsift/internal/enricher"
	"logsift/internal/parser"
)

// ErrNotFound is returned when a record id is not in the store.
var ErrNotFound = errors.New("record not found")

// ── Data Types ───────────────────────────────────────────────────

// Record is one processed log line: the parsed entry, its categories and the
// host context looked up for it.
type Record struct {
	ID         string                 `json:"id"`
	ObservedAt time.Time              `json:"observed_at"`
	Source     string                 `json:"source"`
	Shape      string                 `json:"shape"`
	Entry      *parser.ParsedLogEntry `json:"entry"`
	Category   parser.CategoryResult  `json:"category"`
	Enrichment enricher.Enrichment    `json:"enrichment"`
	Anomaly    string                 `json:"anomaly,omitempty"`
}

// Service returns the entry's service or "unknown".
func (r *Record) Service() string {
	if r.Entry == nil {
		return parser.Unknown
	}
	return r.Entry.ServiceOrUnknown()
}

// Level returns the entry's level, INFO for records without an entry.
func (r *Record) Level() string {
	if r.Entry == nil {
		return parser.LevelInfo
	}
	return r.Entry.LogLevel
}

// RecordStats holds counts computed over all stored records.
type RecordStats struct {
	Total      int            `json:"total"`
	ByLevel    map[string]int `json:"by_level"`
	ByCategory map[string]int `json:"by_category"`
	BySource   map[string]int `json:"by_source"`
	Anomalies  int            `json:"anomalies"`
	TopService string         `json:"top_service"`
	TopSignal  string         `json:"top_signal"`
	Oldest     *time.Time     `json:"oldest,omitempty"`
	Newest     *time.Time     `json:"newest,omitempty"`
}

// ListOpts defines pagination and filtering for list queries.
type ListOpts struct {
	Page     int    // 1-indexed
	PageSize int    // default 50, max 500
	Level    string // filter by log level (empty = all)
	Category string // filter by assigned category (empty = all)
	Service  string // filter by service (empty = all)
	Tag      string // filter by tag (empty = all)
	Source   string // filter by source name (empty = all)
	Since    time.Time
	Until    time.Time
}

// ListResult wraps a paginated result set.
type ListResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// ── Store Interface ──────────────────────────────────────────────

// Store is the persistence interface for processed log records.
// Implementations must be goroutine-safe.
type Store interface {
	SaveRecord(rec *Record) error
	GetRecord(id string) (*Record, error)
	ListRecords(opts ListOpts) (*ListResult[*Record], error)
	DeleteOldRecords(olderThan time.Duration) (int, error)
	ForEach(fn func(*Record) error) error

	GetStats() (*RecordStats, error)

	Close() error
}
