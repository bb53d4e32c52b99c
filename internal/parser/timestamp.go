package parser

import (
	"regexp"
	"strings"
	"time"
)

type timestampRule struct {
	re     *regexp.Regexp
	layout string
	zoned  bool
	noYear bool
}

// Order matters: the offset-less ISO rule matches a prefix of the zoned one.
var timestampRules = []timestampRule{
	{
		re:     regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[+-]\d{2}:\d{2}`),
		layout: "2006-01-02T15:04:05-07:00",
		zoned:  true,
	},
	{
		re:     regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`),
		layout: "2006-01-02T15:04:05",
	},
	// Sep  9 22:56:22
	{
		re:     regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`),
		layout: "Jan 2 15:04:05",
		noYear: true,
	},
	{
		re:     regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`),
		layout: "2006-01-02 15:04:05",
	},
}

// extractTimestamp returns the first timestamp any rule can parse together
// with the line minus the matched text. A rule whose match fails to parse is
// skipped. When nothing parses, line is returned untouched and ok is false.
func extractTimestamp(line string, now time.Time) (ts Timestamp, rest string, ok bool) {
	for _, rule := range timestampRules {
		loc := rule.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		t, ok := rule.parse(line[loc[0]:loc[1]], now)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(line[:loc[0]] + line[loc[1]:])
		return t, rest, true
	}
	return Timestamp{}, line, false
}

func (r timestampRule) parse(s string, now time.Time) (Timestamp, bool) {
	if r.noYear {
		s = strings.Join(strings.Fields(s), " ")
	}
	t, err := time.Parse(r.layout, s)
	if err != nil {
		return Timestamp{}, false
	}
	if r.noYear {
		// Syslog carries no year; assume the current one. Lines written in
		// December and read in January get the wrong year.
		withYear := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		if withYear.Day() != t.Day() {
			// Feb 29 outside a leap year
			return Timestamp{}, false
		}
		t = withYear
	}
	return Timestamp{Time: t, Zoned: r.zoned}, true
}
