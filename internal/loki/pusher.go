package loki

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"logsift/internal/storage"
)

// Pusher sends stored records to Loki's HTTP push API.
type Pusher struct {
	url    string
	client *http.Client
}

// NewPusher returns nil when baseURL is empty; a nil Pusher is a no-op.
func NewPusher(baseURL string) *Pusher {
	if baseURL == "" {
		return nil
	}
	return &Pusher{
		url:    strings.TrimRight(baseURL, "/") + "/loki/api/v1/push",
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// pushRequest is the Loki push API payload
type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// logLine is the JSON body of one pushed line.
type logLine struct {
	ID         string         `json:"id"`
	Host       string         `json:"host"`
	PID        *int           `json:"pid,omitempty"`
	Message    string         `json:"message"`
	Tags       []string       `json:"tags,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Anomaly    string         `json:"anomaly,omitempty"`
	Raw        string         `json:"raw"`
}

// PushRecord sends one record. The line timestamp is the parsed entry time
// when present, the observation time otherwise.
func (p *Pusher) PushRecord(rec *storage.Record) error {
	if p == nil || rec == nil || rec.Entry == nil {
		return nil
	}

	line, err := json.Marshal(logLine{
		ID:         rec.ID,
		Host:       rec.Entry.HostnameOrUnknown(),
		PID:        rec.Entry.PID,
		Message:    rec.Entry.Message,
		Tags:       rec.Category.Tags,
		Categories: rec.Category.Categories,
		Fields:     rec.Entry.StructuredData,
		Anomaly:    rec.Anomaly,
		Raw:        rec.Entry.RawLine,
	})
	if err != nil {
		return fmt.Errorf("loki: marshal line: %w", err)
	}

	ts := rec.ObservedAt
	if rec.Entry.Timestamp != nil {
		ts = rec.Entry.Timestamp.Time
	}

	payload := pushRequest{
		Streams: []stream{
			{
				Stream: Labels(rec),
				Values: [][]string{
					{strconv.FormatInt(ts.UnixNano(), 10), string(line)},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("loki: marshal payload: %w", err)
	}

	resp, err := p.client.Post(p.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("loki: push to %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %d", resp.StatusCode)
	}
	return nil
}

// Labels returns the stream labels for rec. Only low-cardinality values are
// used; pid and host stay in the line body.
func Labels(rec *storage.Record) map[string]string {
	return map[string]string{
		"job":      "logsift",
		"source":   rec.Source,
		"level":    strings.ToLower(rec.Level()),
		"category": rec.Category.PrimaryCategory,
		"service":  rec.Service(),
	}
}

// LogPush pushes rec and logs failures instead of returning them.
func (p *Pusher) LogPush(rec *storage.Record) {
	if err := p.PushRecord(rec); err != nil {
		log.Printf("Loki: %v", err)
	}
}
