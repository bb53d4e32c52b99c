package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// journalRecord holds the journalctl -o json fields used to rebuild a line.
type journalRecord struct {
	Timestamp  string          `json:"__REALTIME_TIMESTAMP"`
	Host       string          `json:"_HOSTNAME"`
	Identifier string          `json:"SYSLOG_IDENTIFIER"`
	Command    string          `json:"_COMM"`
	PID        string          `json:"_PID"`
	Message    json.RawMessage `json:"MESSAGE"`
}

// JournalDecoder rebuilds "<iso8601> <host> <ident>[<pid>]: <message>" lines
// from journalctl JSON records so they parse like short-iso output.
type JournalDecoder struct {
	Location *time.Location
}

func init() {
	Register(DecoderJournalJSON, func() Decoder { return &JournalDecoder{Location: time.Local} })
}

func (d *JournalDecoder) Decode(record string) (string, bool) {
	var rec journalRecord
	if err := json.Unmarshal([]byte(record), &rec); err != nil {
		return "", false
	}
	msg, ok := journalMessage(rec.Message)
	if !ok {
		return "", false
	}

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	ts := time.Now()
	if us, err := strconv.ParseInt(rec.Timestamp, 10, 64); err == nil {
		ts = time.UnixMicro(us)
	}
	stamp := ts.In(loc).Format("2006-01-02T15:04:05-07:00")

	host := rec.Host
	if host == "" {
		host = "localhost"
	}
	ident := rec.Identifier
	if ident == "" {
		ident = rec.Command
	}
	if ident == "" {
		ident = "system"
	}

	if rec.PID != "" {
		return fmt.Sprintf("%s %s %s[%s]: %s", stamp, host, ident, rec.PID, msg), true
	}
	return fmt.Sprintf("%s %s %s: %s", stamp, host, ident, msg), true
}

// journalMessage decodes MESSAGE, which journalctl emits as a byte array when
// the payload is not valid UTF-8.
func journalMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var b []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return "", false
	}
	for _, v := range ints {
		b = append(b, byte(v))
	}
	return string(b), true
}
