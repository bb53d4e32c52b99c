package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"logsift/internal/parser"
)

func openTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "logsift.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	return s, path
}

func newRecord(source, line string, at time.Time) *Record {
	entry := parser.ParseLogLine(line)
	return &Record{
		ObservedAt: at,
		Source:     source,
		Shape:      parser.ClassifyLine(line).Kind.String(),
		Entry:      entry,
		Category:   parser.CategorizeLogEntry(entry),
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *BoltStore) {
	t.Helper()
	lines := []struct {
		source string
		line   string
	}{
		{"journal", "2026-03-01T11:00:00+00:00 fedora systemd[1]: Started Session 3"},
		{"journal", "2026-03-01T11:00:01+00:00 fedora audit[1909]: ANOM_ABEND pid=1909 comm=\"gnome-shell\" sig=6"},
		{"messages", "Mar  1 11:00:02 fedora code[3100]: ERROR extension host crashed sig=11"},
		{"messages", "Mar  1 11:00:03 fedora app[4]: worker exited sig=11"},
		{"syslog", "Mar  1 11:00:04 fedora cron[55]: job finished"},
	}
	for i, l := range lines {
		if err := s.SaveRecord(newRecord(l.source, l.line, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("SaveRecord: %v", err)
		}
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()

	rec := newRecord("journal", "2026-03-01T11:00:01+00:00 fedora audit[1909]: ANOM_ABEND pid=1909 sig=6", time.Time{})
	if err := s.SaveRecord(rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" || rec.ObservedAt.IsZero() {
		t.Fatalf("SaveRecord did not fill ID/ObservedAt: %+v", rec)
	}

	got, err := s.GetRecord(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Entry.RawLine != rec.Entry.RawLine {
		t.Errorf("raw line = %q", got.Entry.RawLine)
	}
	if got.Category.PrimaryCategory != parser.CategorySecurity {
		t.Errorf("primary = %q", got.Category.PrimaryCategory)
	}
	if n, ok := got.Entry.Int(parser.FieldSignalNumber); !ok || n != 6 {
		t.Errorf("signal_number = %d (%v)", n, ok)
	}
	if !got.Entry.Timestamp.Zoned {
		t.Error("timestamp lost its zone flag")
	}

	if _, err := s.GetRecord("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRecord(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListRecordsFilters(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()
	seed(t, s)

	tests := []struct {
		name     string
		opts     ListOpts
		wantSvcs []string
	}{
		{"all newest first", ListOpts{}, []string{"cron", "app", "code", "audit", "systemd"}},
		{"level", ListOpts{Level: "signal"}, []string{"app"}},
		{"category", ListOpts{Category: "crash"}, []string{"app", "code", "audit"}},
		{"service", ListOpts{Service: "AUDIT"}, []string{"audit"}},
		{"tag", ListOpts{Tag: "vscode"}, []string{"code"}},
		{"source", ListOpts{Source: "messages"}, []string{"app", "code"}},
		{"since", ListOpts{Since: base.Add(3 * time.Second)}, []string{"cron", "app"}},
		{"until", ListOpts{Until: base.Add(1 * time.Second)}, []string{"audit", "systemd"}},
		{"page two", ListOpts{Page: 2, PageSize: 2}, []string{"code", "audit"}},
		{"past the end", ListOpts{Page: 9, PageSize: 2}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.ListRecords(tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			got := make([]string, 0, len(res.Items))
			for _, r := range res.Items {
				got = append(got, r.Service())
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.wantSvcs) {
				t.Errorf("services = %v, want %v", got, tt.wantSvcs)
			}
		})
	}
}

func TestListRecordsPagination(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()
	seed(t, s)

	res, err := s.ListRecords(ListOpts{Page: 0, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Page != 1 || res.PageSize != 2 || res.Total != 5 || res.TotalPages != 3 {
		t.Errorf("got page=%d size=%d total=%d pages=%d", res.Page, res.PageSize, res.Total, res.TotalPages)
	}

	if got := normalizeOpts(ListOpts{PageSize: 10_000}).PageSize; got != maxPageSize {
		t.Errorf("page size = %d, want %d", got, maxPageSize)
	}
	if got := normalizeOpts(ListOpts{}).PageSize; got != defaultPageSize {
		t.Errorf("page size = %d, want %d", got, defaultPageSize)
	}
}

func TestDeleteOldRecords(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()
	seed(t, s)

	s.now = func() time.Time { return base.Add(time.Hour + 2*time.Second) }
	n, err := s.DeleteOldRecords(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	res, _ := s.ListRecords(ListOpts{})
	if res.Total != 3 {
		t.Errorf("remaining = %d, want 3", res.Total)
	}
	for _, r := range res.Items {
		if _, err := s.GetRecord(r.ID); err != nil {
			t.Errorf("GetRecord(%s): %v", r.ID, err)
		}
	}
}

func TestGetStats(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()
	seed(t, s)

	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 5 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByLevel[parser.LevelInfo] != 2 || stats.ByLevel[parser.LevelCritical] != 1 {
		t.Errorf("by level = %v", stats.ByLevel)
	}
	if stats.ByCategory[parser.CategoryCrash] != 3 || stats.ByCategory[parser.CategoryGeneral] != 1 {
		t.Errorf("by category = %v", stats.ByCategory)
	}
	if stats.TopSignal != "SIGSEGV" {
		t.Errorf("top signal = %q, want SIGSEGV", stats.TopSignal)
	}
	if stats.BySource["messages"] != 2 {
		t.Errorf("by source = %v", stats.BySource)
	}
	if stats.Oldest == nil || !stats.Oldest.Equal(base) || !stats.Newest.Equal(base.Add(4*time.Second)) {
		t.Errorf("range = %v..%v", stats.Oldest, stats.Newest)
	}
}

func TestForEachOldestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	defer s.Close()
	seed(t, s)

	var prev time.Time
	count := 0
	err := s.ForEach(func(r *Record) error {
		if r.ObservedAt.Before(prev) {
			t.Errorf("out of order: %v before %v", r.ObservedAt, prev)
		}
		prev = r.ObservedAt
		count++
		return nil
	})
	if err != nil || count != 5 {
		t.Errorf("count = %d, err = %v", count, err)
	}

	stop := errors.New("stop")
	if err := s.ForEach(func(*Record) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}
}

func TestUncleanShutdownRecorded(t *testing.T) {
	s, path := openTestStore(t)
	// Simulate a crash: close the db without MarkStopped.
	if err := s.db.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	res, err := s2.ListRecords(ListOpts{Service: "logsift"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Fatalf("records = %d, want 1 unclean shutdown record", res.Total)
	}
	if lvl := res.Items[0].Level(); lvl != parser.LevelCritical {
		t.Errorf("level = %q, want CRITICAL", lvl)
	}
}

func TestCleanShutdownNotRecorded(t *testing.T) {
	s, path := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s2, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	res, _ := s2.ListRecords(ListOpts{})
	if res.Total != 0 {
		t.Errorf("records = %d, want 0", res.Total)
	}
}

func TestOpenReadOnly(t *testing.T) {
	s, path := openTestStore(t)
	seed(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	n := 0
	if err := ro.ForEach(func(*Record) error { n++; return nil }); err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("ForEach saw no records")
	}
	if err := ro.SaveRecord(newRecord("x", "host app: hi", base)); err == nil {
		t.Error("SaveRecord on read-only store succeeded")
	}
	if err := ro.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("OpenReadOnly on missing file succeeded")
	}
}
