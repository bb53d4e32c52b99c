package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"logsift/internal/config"
	"logsift/internal/discovery"
	"logsift/internal/parser"
	"logsift/internal/storage"
)

const segfault = "Jun 26 11:09:12 fedora kernel: foo[77]: segfault at 0 ip 00007f"

func TestRunParse(t *testing.T) {
	in := strings.NewReader(segfault + "\n\n<30>" + segfault + "\n")
	var out bytes.Buffer

	dec, err := parser.Get(parser.DecoderRFC3164)
	if err != nil {
		t.Fatal(err)
	}
	if err := runParse(in, &out, dec, parser.New(), false); err != nil {
		t.Fatalf("runParse: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d results, want 2 (blank line skipped):\n%s", len(lines), out.String())
	}
	for i, l := range lines {
		var res parseOutput
		if err := json.Unmarshal([]byte(l), &res); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if res.Shape != "standard" {
			t.Errorf("line %d: shape = %q, want standard", i, res.Shape)
		}
		if res.Entry.RawLine != segfault {
			t.Errorf("line %d: raw_line = %q, want priority stripped", i, res.Entry.RawLine)
		}
		if !res.Category.Has(parser.CategoryCrash) {
			t.Errorf("line %d: categories = %v, want crash", i, res.Category.Categories)
		}
	}
}

func TestRunParseLongLine(t *testing.T) {
	long := segfault + " " + strings.Repeat("z", 2<<20)
	var out bytes.Buffer
	dec, _ := parser.Get(parser.DecoderPlain)
	if err := runParse(strings.NewReader(long+"\n"+segfault+"\n"), &out, dec, parser.New(), false); err != nil {
		t.Fatalf("runParse: %v", err)
	}
	if n := strings.Count(out.String(), "\n"); n != 2 {
		t.Errorf("results = %d, want 2", n)
	}
}

func TestParseCmdArgs(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"parse", segfault})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), `"primary_category":"crash"`) {
		t.Errorf("output = %s, want crash primary category", out.String())
	}
}

func TestParseCmdUnknownDecoder(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"parse", "--decoder", "nope", "x"})
	if err := root.Execute(); err == nil {
		t.Fatal("Execute succeeded with unknown decoder")
	}
}

type fakeSource []*storage.Record

func (f fakeSource) ForEach(fn func(*storage.Record) error) error {
	for _, r := range f {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func record(id, line string, at time.Time) *storage.Record {
	e := parser.ParseLogLine(line)
	return &storage.Record{ID: id, ObservedAt: at, Source: "test", Entry: e, Category: parser.CategorizeLogEntry(e)}
}

func TestRunExport(t *testing.T) {
	now := time.Now()
	src := fakeSource{
		record("a", "Jun 26 11:09:12 fedora app[1]: ERROR boom", now.Add(-2*time.Hour)),
		record("b", segfault, now.Add(-time.Minute)),
		record("c", "Jun 26 11:09:12 fedora app[1]: all good", now),
	}

	tests := []struct {
		name    string
		filter  storage.ListOpts
		wantIDs []string
	}{
		{"all", storage.ListOpts{}, []string{"a", "b", "c"}},
		{"since", storage.ListOpts{Since: now.Add(-time.Hour)}, []string{"b", "c"}},
		{"category", storage.ListOpts{Category: "CRASH"}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := runExport(src, &buf, tt.filter, true)
			if err != nil {
				t.Fatalf("runExport: %v", err)
			}
			if n != len(tt.wantIDs) {
				t.Errorf("n = %d, want %d", n, len(tt.wantIDs))
			}

			dec, err := zstd.NewReader(&buf)
			if err != nil {
				t.Fatal(err)
			}
			defer dec.Close()

			var got []string
			scanner := bufio.NewScanner(dec)
			for scanner.Scan() {
				var rec storage.Record
				if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
					t.Fatalf("decode: %v", err)
				}
				got = append(got, rec.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

type failingSource struct{}

func (failingSource) ForEach(func(*storage.Record) error) error { return errors.New("disk gone") }

func TestRunExportError(t *testing.T) {
	if _, err := runExport(failingSource{}, &bytes.Buffer{}, storage.ListOpts{}, true); err == nil {
		t.Fatal("runExport succeeded with failing source")
	}
}

func TestMergeSources(t *testing.T) {
	configured := []config.SourceDef{
		{Name: "messages", Type: config.SourceFile, Path: "/var/log/messages", Decoder: parser.DecoderPlain, Enabled: true},
	}
	found := []discovery.Candidate{
		{Name: "audit", Type: config.SourceFile, Path: "/var/log/audit/audit.log", Decoder: parser.DecoderPlain, Owner: "auditd"},
		{Name: "messages", Type: config.SourceFile, Path: "/host/var/log/messages", Decoder: parser.DecoderPlain},
	}

	rows := mergeSources(configured, found)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Origin != "config" || rows[0].Path != "/var/log/messages" {
		t.Errorf("rows[0] = %+v, want configured messages", rows[0])
	}
	if rows[1].Name != "audit" || rows[1].Origin != "discovered" || rows[1].Owner != "auditd" {
		t.Errorf("rows[1] = %+v, want discovered audit", rows[1])
	}

	var out bytes.Buffer
	if err := printSources(&out, rows); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "NAME") || !strings.Contains(out.String(), "discovered") {
		t.Errorf("table = %q", out.String())
	}
}
