package intelligence

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/crowdsecurity/crowdsec/pkg/models"
	csbouncer "github.com/crowdsecurity/go-cs-bouncer"
	"github.com/prometheus/client_golang/prometheus"
)

// CrowdSecBouncer mirrors the CrowdSec LAPI ban decisions so audit and auth
// lines carrying addr= can be flagged as coming from a banned address.
type CrowdSecBouncer struct {
	StreamBouncer *csbouncer.StreamBouncer
	BanMetric     prometheus.Counter

	bannedIPs map[string]bool
	mu        sync.RWMutex
}

func NewCrowdSecBouncer(apiKey, apiURL string) *CrowdSecBouncer {
	return &CrowdSecBouncer{
		bannedIPs: make(map[string]bool),
		BanMetric: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logsift_crowdsec_banned_entries_total",
			Help: "Total number of log entries whose addr= field is banned by CrowdSec.",
		}),
		StreamBouncer: &csbouncer.StreamBouncer{
			APIKey:         apiKey,
			APIUrl:         apiURL,
			TickerInterval: "15s",
			UserAgent:      "logsift/v1",
		},
	}
}

func (cb *CrowdSecBouncer) Register(reg prometheus.Registerer) {
	reg.MustRegister(cb.BanMetric)
}

// Start initializes the stream bouncer; call before Run.
func (cb *CrowdSecBouncer) Start() error {
	log.Println("CrowdSec: starting stream bouncer")
	return cb.StreamBouncer.Init()
}

// Run consumes decision updates until ctx is done.
func (cb *CrowdSecBouncer) Run(ctx context.Context) {
	go func() {
		if err := cb.StreamBouncer.Run(ctx); err != nil {
			log.Printf("CrowdSec: bouncer run failed: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case decisions, ok := <-cb.StreamBouncer.Stream:
			if !ok {
				return
			}
			cb.handleDecisions(decisions)
		}
	}
}

func (cb *CrowdSecBouncer) handleDecisions(decisions *models.DecisionsStreamResponse) {
	if decisions == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	for _, d := range decisions.New {
		if isBan(d) {
			cb.bannedIPs[*d.Value] = true
		}
	}
	for _, d := range decisions.Deleted {
		if isBan(d) {
			delete(cb.bannedIPs, *d.Value)
		}
	}
}

func isBan(d *models.Decision) bool {
	return d != nil && d.Type != nil && d.Value != nil && strings.EqualFold(*d.Type, "ban")
}

// Banned reports whether ip is currently banned and counts the hit.
func (cb *CrowdSecBouncer) Banned(ip string) bool {
	cb.mu.RLock()
	banned := cb.bannedIPs[ip]
	cb.mu.RUnlock()
	if banned {
		cb.BanMetric.Inc()
	}
	return banned
}
