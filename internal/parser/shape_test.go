package parser

import (
	"testing"
	"time"
)

func TestClassifyLineStandard(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantTS    string
		wantHost  string
		wantIdent string
		wantPID   int
		wantMsg   string
	}{
		{
			name:      "iso with pid",
			line:      userCmdLine,
			wantTS:    "2025-06-26T11:09:12-04:00",
			wantHost:  "fedora",
			wantIdent: "audit",
			wantPID:   17314,
			wantMsg:   userCmdLine[len("2025-06-26T11:09:12-04:00 fedora audit[17314]: "):],
		},
		{
			name:      "bsd without pid",
			line:      "Jan 15 10:30:45 myhost kernel: usb 1-1: reset",
			wantTS:    "Jan 15 10:30:45",
			wantHost:  "myhost",
			wantIdent: "kernel",
			wantMsg:   "usb 1-1: reset",
		},
		{
			name:      "fractional seconds",
			line:      "2025-06-26T11:09:12.123456+0000 box cron[9]: tick",
			wantTS:    "2025-06-26T11:09:12.123456+0000",
			wantHost:  "box",
			wantIdent: "cron",
			wantPID:   9,
			wantMsg:   "tick",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ClassifyLine(tt.line)
			if s.Kind != ShapeStandard {
				t.Fatalf("kind = %v, want standard", s.Kind)
			}
			if s.Timestamp != tt.wantTS || s.Host != tt.wantHost || s.Ident != tt.wantIdent {
				t.Errorf("got ts=%q host=%q ident=%q", s.Timestamp, s.Host, s.Ident)
			}
			if tt.wantPID == 0 {
				if s.PID != nil {
					t.Errorf("pid = %d, want none", *s.PID)
				}
			} else if s.PID == nil || *s.PID != tt.wantPID {
				t.Errorf("pid = %v, want %d", s.PID, tt.wantPID)
			}
			if s.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", s.Message, tt.wantMsg)
			}
		})
	}
}

func TestClassifyLineAudit(t *testing.T) {
	s := ClassifyLine("type=USER_CMD msg=audit(1750950552.123:4567): pid=17314 uid=1000")
	if s.Kind != ShapeAuditOnly {
		t.Fatalf("kind = %v, want audit", s.Kind)
	}
	if s.RecordType != "USER_CMD" {
		t.Errorf("type = %q", s.RecordType)
	}
	want := time.Unix(1750950552, 123000000).UTC()
	if !s.EventTime.Equal(want) {
		t.Errorf("event time = %v, want %v", s.EventTime, want)
	}
	if s.Serial != 4567 {
		t.Errorf("serial = %d, want 4567", s.Serial)
	}
	if s.Body != "pid=17314 uid=1000" {
		t.Errorf("body = %q", s.Body)
	}
	if s.Kind.String() != "audit" {
		t.Errorf("String() = %q", s.Kind.String())
	}
}

func TestClassifyLineUnrecognized(t *testing.T) {
	for _, line := range []string{"", "hello world", "type=X msg=audit(abc:1): x", "Jan 15 10:30:45 host-only"} {
		if s := ClassifyLine(line); s.Kind != ShapeUnrecognized {
			t.Errorf("ClassifyLine(%q) = %v, want unrecognized", line, s.Kind)
		}
	}
}

func TestFracNanos(t *testing.T) {
	tests := map[string]int64{
		"1":          100000000,
		"123":        123000000,
		"123456789":  123456789,
		"1234567891": 123456789,
	}
	for in, want := range tests {
		if got := fracNanos(in); got != want {
			t.Errorf("fracNanos(%q) = %d, want %d", in, got, want)
		}
	}
}
