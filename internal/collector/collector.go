package collector

import (
	"github.com/prometheus/client_golang/prometheus"

	"logsift/internal/parser"
	"logsift/internal/storage"
)

type LogCollector struct {
	Entries            *prometheus.CounterVec
	Categories         *prometheus.CounterVec
	Signals            *prometheus.CounterVec
	Anomalies          *prometheus.CounterVec
	UnparsedTimestamps *prometheus.CounterVec
	StoreErrors        prometheus.Counter
}

func NewLogCollector() *LogCollector {
	return &LogCollector{
		Entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logsift_entries_total",
				Help: "Total number of parsed log entries.",
			},
			[]string{"source", "service", "level"},
		),
		Categories: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logsift_categories_total",
				Help: "Total number of entries assigned to each category.",
			},
			[]string{"category"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logsift_signals_total",
				Help: "Total number of entries reporting a process signal.",
			},
			[]string{"signal"},
		),
		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logsift_anomalies_total",
				Help: "Total number of error and crash bursts detected.",
			},
			[]string{"service", "type"},
		),
		UnparsedTimestamps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logsift_unparsed_timestamps_total",
				Help: "Total number of lines with no recognizable timestamp.",
			},
			[]string{"source"},
		),
		StoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "logsift_store_errors_total",
				Help: "Total number of records that could not be persisted.",
			},
		),
	}
}

func (c *LogCollector) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.Entries,
		c.Categories,
		c.Signals,
		c.Anomalies,
		c.UnparsedTimestamps,
		c.StoreErrors,
	)
}

// Observe records the metrics for one processed record.
func (c *LogCollector) Observe(rec *storage.Record) {
	service := rec.Service()
	c.Entries.WithLabelValues(rec.Source, service, rec.Level()).Inc()

	if len(rec.Category.Categories) == 0 {
		c.Categories.WithLabelValues(parser.CategoryGeneral).Inc()
	}
	for _, cat := range rec.Category.Categories {
		c.Categories.WithLabelValues(cat).Inc()
	}

	if rec.Entry != nil {
		if sig, ok := rec.Entry.Text(parser.FieldSignalName); ok {
			c.Signals.WithLabelValues(sig).Inc()
		}
		if rec.Entry.Timestamp == nil {
			c.UnparsedTimestamps.WithLabelValues(rec.Source).Inc()
		}
	}

	if rec.Anomaly != "" {
		c.Anomalies.WithLabelValues(service, rec.Anomaly).Inc()
	}
}
