package parser

import (
	"time"
)

// Parser turns raw system log lines (syslog, journald, audit, kernel) into
// ParsedLogEntry values. A Parser holds only read-only configuration and is
// safe for concurrent use.
type Parser struct {
	now     func() time.Time
	markers []AppMarker
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock sets the clock used to fill in the year of syslog timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// WithAppMarkers replaces the application markers used by Categorize.
func WithAppMarkers(markers []AppMarker) Option {
	return func(p *Parser) {
		p.markers = append([]AppMarker(nil), markers...)
	}
}

// New returns a Parser with the default clock and markers.
func New(opts ...Option) *Parser {
	p := &Parser{
		now:     time.Now,
		markers: append([]AppMarker(nil), DefaultAppMarkers...),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Markers returns a copy of the configured application markers.
func (p *Parser) Markers() []AppMarker {
	return append([]AppMarker(nil), p.markers...)
}

// Parse never fails: fields that cannot be recovered are left empty and the
// level falls back to INFO. RawLine always equals raw.
func (p *Parser) Parse(raw string) *ParsedLogEntry {
	entry := &ParsedLogEntry{
		LogLevel:       detectLevel(raw),
		StructuredData: extractStructured(raw),
		RawLine:        raw,
	}

	rest := raw
	if ts, stripped, ok := extractTimestamp(raw, p.now()); ok {
		entry.Timestamp = &ts
		rest = stripped
	}

	// Hostname and message are taken from the same timestamp-stripped text in
	// two independent passes.
	entry.Hostname = extractHostname(rest)
	entry.Message = rest
	if svc, ok := extractService(rest); ok {
		entry.Service = svc.name
		entry.PID = svc.pid
		entry.Message = svc.rest
	}
	return entry
}

var defaultParser = New()

// ParseLogLine parses raw with the default parser.
func ParseLogLine(raw string) *ParsedLogEntry {
	return defaultParser.Parse(raw)
}

// CategorizeLogEntry categorizes e with the default application markers.
func CategorizeLogEntry(e *ParsedLogEntry) CategoryResult {
	return defaultParser.Categorize(e)
}
