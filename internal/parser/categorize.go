package parser

import (
	"strings"
)

// Category vocabulary.
const (
	CategorySystem      = "system"
	CategoryApplication = "application"
	CategorySecurity    = "security"
	CategoryError       = "error"
	CategoryCrash       = "crash"
	CategoryGeneral     = "general"
)

// AppMarker tags lines emitted by a known desktop application. Substring is
// matched case-sensitively against the raw line.
type AppMarker struct {
	Substring string `json:"substring"`
	Tag       string `json:"tag"`
}

// DefaultAppMarkers is used when no markers are configured.
var DefaultAppMarkers = []AppMarker{
	{Substring: "code", Tag: "vscode"},
}

var (
	systemServices = map[string]bool{"systemd": true, "kernel": true, "audit": true}
	errorLevels    = map[string]bool{LevelCritical: true, LevelError: true, LevelSignal: true}
	crashMarkers   = []string{"sig=", "segfault", "oom", "memory"}
)

// CategoryResult is the coarse classification of one entry. Categories and
// Tags keep first-seen order without duplicates.
type CategoryResult struct {
	Categories      []string `json:"categories"`
	Tags            []string `json:"tags"`
	PrimaryCategory string   `json:"primary_category"`
}

// Has reports whether category c was assigned.
func (r CategoryResult) Has(c string) bool {
	return contains(r.Categories, c)
}

// Categorize runs every predicate in a fixed order; one predicate firing does
// not stop the others. The security check runs first so audit records are
// primarily security events.
func (p *Parser) Categorize(e *ParsedLogEntry) CategoryResult {
	res := CategoryResult{Categories: []string{}, Tags: []string{}}
	if e == nil {
		res.PrimaryCategory = CategoryGeneral
		return res
	}
	raw := e.RawLine

	if e.Service == "audit" || strings.Contains(raw, anomAbend) {
		res.add(CategorySecurity, "audit")
	}
	if systemServices[e.Service] {
		res.add(CategorySystem)
	}
	for _, m := range p.markers {
		if m.Substring != "" && strings.Contains(raw, m.Substring) {
			res.add(CategoryApplication, m.Tag)
		}
	}
	if errorLevels[e.LogLevel] {
		res.add(CategoryError)
	}
	lower := strings.ToLower(raw)
	for _, kw := range crashMarkers {
		if strings.Contains(lower, kw) {
			res.add(CategoryCrash, "memory")
			break
		}
	}

	res.PrimaryCategory = CategoryGeneral
	if len(res.Categories) > 0 {
		res.PrimaryCategory = res.Categories[0]
	}
	return res
}

func (r *CategoryResult) add(category string, tags ...string) {
	if !contains(r.Categories, category) {
		r.Categories = append(r.Categories, category)
	}
	for _, t := range tags {
		if t != "" && !contains(r.Tags, t) {
			r.Tags = append(r.Tags, t)
		}
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
