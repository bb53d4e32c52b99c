package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	keyValuePattern = regexp.MustCompile(`([\p{L}\p{N}_]+)=(\S+)`)
	pidPattern      = regexp.MustCompile(`pid=(\d+)`)
	commPattern     = regexp.MustCompile(`comm="([^"]*)"`)
)

// Structured data keys set in addition to the generic key=value scan.
const (
	FieldSignalNumber = "signal_number"
	FieldSignalName   = "signal_name"
	FieldProcessID    = "process_id"
	FieldCommand      = "command"
)

var signalNames = map[int]string{
	1:  "SIGHUP",
	2:  "SIGINT",
	3:  "SIGQUIT",
	4:  "SIGILL",
	5:  "SIGTRAP",
	6:  "SIGABRT",
	7:  "SIGBUS",
	8:  "SIGFPE",
	9:  "SIGKILL",
	10: "SIGUSR1",
	11: "SIGSEGV",
	12: "SIGUSR2",
	13: "SIGPIPE",
	14: "SIGALRM",
	15: "SIGTERM",
}

// SignalName maps a signal number to its POSIX name, synthesizing SIG<n>
// outside 1-15.
func SignalName(n int) string {
	if name, ok := signalNames[n]; ok {
		return name
	}
	return "SIG" + strconv.Itoa(n)
}

// extractStructured collects key=value tokens from the untouched line.
// Later keys overwrite earlier ones. The typed signal, pid and comm fields are
// added alongside the generic strings, not instead of them.
func extractStructured(line string) map[string]any {
	data := make(map[string]any)
	for _, m := range keyValuePattern.FindAllStringSubmatch(line, -1) {
		data[m[1]] = strings.Trim(m[2], `"'`)
	}

	if m := sigPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			data[FieldSignalNumber] = n
			data[FieldSignalName] = SignalName(n)
		}
	}
	if m := pidPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			data[FieldProcessID] = n
		}
	}
	if m := commPattern.FindStringSubmatch(line); m != nil {
		data[FieldCommand] = m[1]
	}
	return data
}
