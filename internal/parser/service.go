package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// servicePatterns are tried in order; the generic name[pid]: form comes first.
var servicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?P<name>\w+)\[(?P<pid>\d+)\]:`),
	regexp.MustCompile(`(?P<name>audit)\[(?P<pid>\d+)\]:`),
	regexp.MustCompile(`(?P<name>kernel):`),
	regexp.MustCompile(`(?P<name>sudo)\[(?P<pid>\d+)\]:`),
}

type serviceMatch struct {
	name string
	pid  *int
	rest string
}

// extractService finds the emitting program tag. rest is the text after the
// tag with surrounding whitespace trimmed.
func extractService(line string) (serviceMatch, bool) {
	for _, re := range servicePatterns {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		sm := serviceMatch{rest: strings.TrimSpace(line[m[1]:])}
		if i := re.SubexpIndex("name"); i > 0 && m[2*i] >= 0 {
			sm.name = line[m[2*i]:m[2*i+1]]
		}
		if i := re.SubexpIndex("pid"); i > 0 && m[2*i] >= 0 {
			if pid, err := strconv.Atoi(line[m[2*i]:m[2*i+1]]); err == nil {
				sm.pid = &pid
			}
		}
		return sm, true
	}
	return serviceMatch{}, false
}

// extractHostname takes the second whitespace-separated token of the
// timestamp-stripped line unless it starts with a digit. Lines without a host
// field yield a wrong answer; the source format is not known here.
func extractHostname(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(fields[1])
	if unicode.IsDigit(r) {
		return ""
	}
	return fields[1]
}
