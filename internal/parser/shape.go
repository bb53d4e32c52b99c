package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ShapeKind identifies the record layout of a line.
type ShapeKind int

const (
	ShapeUnrecognized ShapeKind = iota
	ShapeStandard
	ShapeAuditOnly
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeStandard:
		return "standard"
	case ShapeAuditOnly:
		return "audit"
	default:
		return "unrecognized"
	}
}

// LineShape is the result of ClassifyLine. Which fields are set depends on Kind.
type LineShape struct {
	Kind ShapeKind

	// ShapeStandard
	Timestamp string
	Host      string
	Ident     string
	PID       *int
	Message   string

	// ShapeAuditOnly
	RecordType string
	EventTime  time.Time
	Serial     int64
	Body       string
}

// Jan 15 10:30:45 myhost sshd[1234]: Accepted password for user
// 2025-06-26T11:09:12-04:00 fedora audit[17314]: USER_CMD pid=17314
var standardLine = regexp.MustCompile(
	`^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?|[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})` +
		`\s+(?P<host>\S+)` +
		`\s+(?P<ident>[^\s\[:]+)` +
		`(?:\[(?P<pid>\d+)\])?` +
		`:\s*(?P<msg>.*)$`,
)

// type=USER_CMD msg=audit(1750950552.123:4567): pid=17314 uid=1000
var auditLine = regexp.MustCompile(
	`^type=(?P<type>\w+)\s+msg=audit\((?P<sec>\d+)\.(?P<frac>\d+):(?P<serial>\d+)\):\s*(?P<body>.*)$`,
)

// ClassifyLine reports which known record layout raw follows.
func ClassifyLine(raw string) LineShape {
	if m := standardLine.FindStringSubmatch(raw); m != nil {
		shape := LineShape{
			Kind:      ShapeStandard,
			Timestamp: group(standardLine, m, "timestamp"),
			Host:      group(standardLine, m, "host"),
			Ident:     group(standardLine, m, "ident"),
			Message:   group(standardLine, m, "msg"),
		}
		if s := group(standardLine, m, "pid"); s != "" {
			if pid, err := strconv.Atoi(s); err == nil {
				shape.PID = &pid
			}
		}
		return shape
	}

	if m := auditLine.FindStringSubmatch(raw); m != nil {
		sec, err := strconv.ParseInt(group(auditLine, m, "sec"), 10, 64)
		if err != nil {
			return LineShape{Kind: ShapeUnrecognized}
		}
		serial, err := strconv.ParseInt(group(auditLine, m, "serial"), 10, 64)
		if err != nil {
			return LineShape{Kind: ShapeUnrecognized}
		}
		return LineShape{
			Kind:       ShapeAuditOnly,
			RecordType: group(auditLine, m, "type"),
			EventTime:  time.Unix(sec, fracNanos(group(auditLine, m, "frac"))).UTC(),
			Serial:     serial,
			Body:       group(auditLine, m, "body"),
		}
	}

	return LineShape{Kind: ShapeUnrecognized}
}

func group(re *regexp.Regexp, m []string, name string) string {
	if i := re.SubexpIndex(name); i > 0 && i < len(m) {
		return m[i]
	}
	return ""
}

// fracNanos converts the digits after the decimal point to nanoseconds.
func fracNanos(frac string) int64 {
	if len(frac) > 9 {
		frac = frac[:9]
	}
	frac += strings.Repeat("0", 9-len(frac))
	n, _ := strconv.ParseInt(frac, 10, 64)
	return n
}
