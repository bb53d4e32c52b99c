package anomaly

import (
	"context"
	"sync"
	"time"

	"logsift/internal/parser"
)

type AnomalyType string

const (
	ErrorBurst AnomalyType = "error_burst"
	CrashBurst AnomalyType = "crash_burst"
)

type ServiceStats struct {
	ErrorCount int
	CrashCount int
	LastSeen   time.Time
}

// AnomalyDetector counts error and crash entries per service within a fixed
// window. Counters are cleared by Run once per window.
type AnomalyDetector struct {
	mu             sync.Mutex
	Stats          map[string]*ServiceStats
	ErrorThreshold int
	CrashThreshold int
	Window         time.Duration
	now            func() time.Time
}

func NewAnomalyDetector(errorThreshold, crashThreshold int) *AnomalyDetector {
	if errorThreshold <= 0 {
		errorThreshold = 20
	}
	if crashThreshold <= 0 {
		crashThreshold = 5
	}
	return &AnomalyDetector{
		Stats:          make(map[string]*ServiceStats),
		ErrorThreshold: errorThreshold,
		CrashThreshold: crashThreshold,
		Window:         1 * time.Minute,
		now:            time.Now,
	}
}

// Run resets the window counters until ctx is done.
func (ad *AnomalyDetector) Run(ctx context.Context) {
	ticker := time.NewTicker(ad.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ad.reset()
		}
	}
}

func (ad *AnomalyDetector) reset() {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	now := ad.now()
	for svc, stat := range ad.Stats {
		if now.Sub(stat.LastSeen) > ad.Window {
			delete(ad.Stats, svc)
			continue
		}
		stat.ErrorCount = 0
		stat.CrashCount = 0
	}
}

// Check records one categorized entry for service and returns the anomaly
// it completes, or "" when counts are within threshold. A crash burst wins
// over an error burst.
func (ad *AnomalyDetector) Check(service string, res parser.CategoryResult) AnomalyType {
	isErr := res.Has(parser.CategoryError)
	isCrash := res.Has(parser.CategoryCrash)
	if !isErr && !isCrash {
		return ""
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()

	stat, exists := ad.Stats[service]
	if !exists {
		stat = &ServiceStats{}
		ad.Stats[service] = stat
	}
	stat.LastSeen = ad.now()

	var result AnomalyType
	if isErr {
		stat.ErrorCount++
		if stat.ErrorCount > ad.ErrorThreshold {
			result = ErrorBurst
		}
	}
	if isCrash {
		stat.CrashCount++
		if stat.CrashCount > ad.CrashThreshold {
			result = CrashBurst
		}
	}
	return result
}
