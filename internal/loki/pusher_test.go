package loki

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"logsift/internal/parser"
	"logsift/internal/storage"
)

func TestPushRecord(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	line := "2026-03-01T11:00:01+00:00 fedora audit[1909]: ANOM_ABEND pid=1909 sig=6"
	e := parser.ParseLogLine(line)
	rec := &storage.Record{
		ID:         "abc",
		ObservedAt: time.Date(2026, 3, 1, 11, 0, 5, 0, time.UTC),
		Source:     "journal",
		Entry:      e,
		Category:   parser.CategorizeLogEntry(e),
	}

	if err := NewPusher(srv.URL + "/").PushRecord(rec); err != nil {
		t.Fatal(err)
	}

	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d", len(got.Streams))
	}
	s := got.Streams[0]
	want := map[string]string{"job": "logsift", "source": "journal", "level": "critical", "category": "security", "service": "audit"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	if len(s.Values) != 1 || s.Values[0][0] != "1772362801000000000" {
		t.Errorf("values = %v", s.Values)
	}

	var body logLine
	if err := json.Unmarshal([]byte(s.Values[0][1]), &body); err != nil {
		t.Fatal(err)
	}
	if body.ID != "abc" || body.Raw != line || body.PID == nil || *body.PID != 1909 {
		t.Errorf("line body = %+v", body)
	}
}

func TestPushRecordErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := parser.ParseLogLine("x")
	rec := &storage.Record{Entry: e, ObservedAt: time.Now()}
	if err := NewPusher(srv.URL).PushRecord(rec); err == nil {
		t.Error("expected error on 400")
	}

	var disabled *Pusher = NewPusher("")
	if disabled != nil {
		t.Fatal("empty URL should return nil pusher")
	}
	if err := disabled.PushRecord(rec); err != nil {
		t.Errorf("nil pusher: %v", err)
	}
}
