package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Unknown is how absent hostname, service and timestamp values are rendered.
const Unknown = "unknown"

// Severity vocabulary. Every ParsedLogEntry carries exactly one of these.
const (
	LevelEmergency = "EMERGENCY"
	LevelAlert     = "ALERT"
	LevelCritical  = "CRITICAL"
	LevelError     = "ERROR"
	LevelWarning   = "WARNING"
	LevelNotice    = "NOTICE"
	LevelInfo      = "INFO"
	LevelDebug     = "DEBUG"
	LevelFatal     = "FATAL"
	LevelWarn      = "WARN"
	LevelTrace     = "TRACE"
	LevelSignal    = "SIGNAL"
)

// Levels lists the full severity vocabulary.
var Levels = []string{
	LevelEmergency, LevelAlert, LevelCritical, LevelError, LevelWarning, LevelNotice,
	LevelInfo, LevelDebug, LevelFatal, LevelWarn, LevelTrace, LevelSignal,
}

// IsLevel reports whether l belongs to the severity vocabulary.
func IsLevel(l string) bool {
	for _, v := range Levels {
		if v == l {
			return true
		}
	}
	return false
}

const naiveLayout = "2006-01-02T15:04:05"

// Timestamp is a point in time with one-second resolution.
// When Zoned is false the source carried no UTC offset and Time holds the
// wall clock reading in UTC.
type Timestamp struct {
	Time  time.Time
	Zoned bool
}

func (t Timestamp) String() string {
	if t.Zoned {
		return t.Time.Format(time.RFC3339)
	}
	return t.Time.Format(naiveLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, err := time.Parse(time.RFC3339, s); err == nil {
		*t = Timestamp{Time: v, Zoned: true}
		return nil
	}
	v, err := time.Parse(naiveLayout, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = Timestamp{Time: v}
	return nil
}

// ParsedLogEntry is the structured form of one raw log line.
// Entries are built once by Parser.Parse and must be treated as read-only.
type ParsedLogEntry struct {
	Timestamp      *Timestamp     `json:"timestamp"`
	Hostname       string         `json:"hostname,omitempty"`
	Service        string         `json:"service,omitempty"`
	PID            *int           `json:"pid,omitempty"`
	LogLevel       string         `json:"log_level"`
	Message        string         `json:"message"`
	StructuredData map[string]any `json:"structured_data"`
	RawLine        string         `json:"raw_line"`
}

// HostnameOrUnknown returns the hostname, or Unknown when none was found.
func (e *ParsedLogEntry) HostnameOrUnknown() string {
	if e.Hostname == "" {
		return Unknown
	}
	return e.Hostname
}

// ServiceOrUnknown returns the service, or Unknown when none was found.
func (e *ParsedLogEntry) ServiceOrUnknown() string {
	if e.Service == "" {
		return Unknown
	}
	return e.Service
}

// Fields returns a copy of the structured data.
func (e *ParsedLogEntry) Fields() map[string]any {
	out := make(map[string]any, len(e.StructuredData))
	for k, v := range e.StructuredData {
		out[k] = v
	}
	return out
}

// Text returns the structured value under key formatted as text.
func (e *ParsedLogEntry) Text(key string) (string, bool) {
	v, ok := e.StructuredData[key]
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return fmt.Sprint(x), true
	}
}

// Int returns the structured value under key as an int. Values decoded from
// JSON arrive as float64 and are accepted when they are whole numbers.
func (e *ParsedLogEntry) Int(key string) (int, bool) {
	switch x := e.StructuredData[key].(type) {
	case int:
		return x, true
	case float64:
		if x == float64(int(x)) {
			return int(x), true
		}
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}
