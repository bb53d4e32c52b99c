package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"logsift/internal/parser"
	"logsift/internal/storage"
)

// DiscordPayload is the webhook body. Slack-compatible receivers accept the
// same "content" field through their Discord shims.
type DiscordPayload struct {
	Content string `json:"content"`
}

type Dispatcher struct {
	WebhookURL string
	Throttle   time.Duration
	client     *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

func NewDispatcher(webhookURL string) *Dispatcher {
	return &Dispatcher{
		WebhookURL: webhookURL,
		Throttle:   time.Minute,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// NotifyCrash sends an alert for records in the crash category, at most one
// per service per Throttle interval. It reports whether an alert was queued.
func (d *Dispatcher) NotifyCrash(rec *storage.Record) bool {
	if d.WebhookURL == "" || rec == nil || rec.Entry == nil || !rec.Category.Has(parser.CategoryCrash) {
		return false
	}

	service := rec.Service()
	d.mu.Lock()
	now := d.now()
	if last, ok := d.lastSent[service]; ok && now.Sub(last) < d.Throttle {
		d.mu.Unlock()
		return false
	}
	d.lastSent[service] = now
	d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "host %s, level %s", rec.Entry.HostnameOrUnknown(), rec.Level())
	if sig, ok := rec.Entry.Text(parser.FieldSignalName); ok {
		fmt.Fprintf(&b, ", signal %s", sig)
	}
	if cmd, ok := rec.Entry.Text(parser.FieldCommand); ok && cmd != "" {
		fmt.Fprintf(&b, ", command %s", cmd)
	}
	if rec.Enrichment.LoginUser != "" {
		fmt.Fprintf(&b, ", login user %s", rec.Enrichment.LoginUser)
	}
	b.WriteString("\n")
	b.WriteString(rec.Entry.Message)

	title := fmt.Sprintf("Crash in %s", service)
	d.Send(title, b.String(), "CRITICAL", rec.Source)
	return true
}

// Send posts a message asynchronously. Failures are logged.
func (d *Dispatcher) Send(title, description, severity, source string) {
	if d.WebhookURL == "" {
		return // Webhooks disabled
	}

	msg := fmt.Sprintf("[%s] **%s**\n%s\nSource: %s", severity, title, description, source)
	body, err := json.Marshal(DiscordPayload{Content: msg})
	if err != nil {
		log.Printf("Alerts: failed to marshal alert: %v", err)
		return
	}

	go func() {
		resp, err := d.client.Post(d.WebhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("Alerts: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			log.Printf("Alerts: webhook returned status %d", resp.StatusCode)
		}
	}()
}
