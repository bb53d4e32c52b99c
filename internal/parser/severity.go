package parser

import (
	"regexp"
	"strings"
)

// severityPatterns are tried in order. Within a pattern the leftmost word in
// the line wins.
var severityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(EMERGENCY|ALERT|CRITICAL|ERROR|WARNING|NOTICE|INFO|DEBUG)\b`),
	regexp.MustCompile(`(?i)\b(FATAL|WARN|TRACE)\b`),
}

var sigPattern = regexp.MustCompile(`sig=(\d+)`)

const anomAbend = "ANOM_ABEND"

// detectLevel scans the untouched line. Explicit severity words win, then an
// abnormal-end audit record, then a signal number, then INFO.
func detectLevel(line string) string {
	for _, re := range severityPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	if strings.Contains(line, anomAbend) {
		return LevelCritical
	}
	if sigPattern.MatchString(line) {
		return LevelSignal
	}
	return LevelInfo
}
