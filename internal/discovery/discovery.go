package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"logsift/internal/config"
	"logsift/internal/parser"
)

// Candidate is a log source found on the host.
type Candidate struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
	Decoder string `json:"decoder"`
	Owner   string `json:"owner,omitempty"` // process that writes it, if known
}

// Source converts c to an enabled source definition.
func (c Candidate) Source() config.SourceDef {
	return config.SourceDef{Name: c.Name, Type: c.Type, Path: c.Path, Decoder: c.Decoder, Enabled: true}
}

type AutoDiscover struct {
	// Root is prepended to every host path; "/host" when the filesystem is
	// bind-mounted into a container.
	Root     string
	ProcRoot string
}

func NewAutoDiscover() *AutoDiscover {
	root := os.Getenv("HOST_ROOT")
	proc := os.Getenv("HOST_PROC")
	if proc == "" {
		proc = filepath.Join(root, "/proc")
	}
	return &AutoDiscover{Root: root, ProcRoot: proc}
}

// wellKnownLogs are the distribution default locations for system logs.
var wellKnownLogs = []struct {
	name string
	path string
}{
	{"messages", "/var/log/messages"},
	{"syslog", "/var/log/syslog"},
	{"auth", "/var/log/auth.log"},
	{"secure", "/var/log/secure"},
	{"kern", "/var/log/kern.log"},
	{"daemon", "/var/log/daemon.log"},
	{"audit", "/var/log/audit/audit.log"},
}

// journalDirs hold the journal when systemd-journald is in use.
var journalDirs = []string{"/run/log/journal", "/var/log/journal"}

// targetProcesses are the daemons that write system logs.
var targetProcesses = map[string]*regexp.Regexp{
	"rsyslogd":  regexp.MustCompile(`^rsyslogd`),
	"syslog-ng": regexp.MustCompile(`^syslog-ng`),
	"auditd":    regexp.MustCompile(`^auditd`),
	"journald":  regexp.MustCompile(`^systemd-journal`),
}

// Scan returns the readable log files and whether the journal is available.
// Results are sorted by name.
func (ad *AutoDiscover) Scan() ([]Candidate, error) {
	owners, err := ad.scanProcesses()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var out []Candidate
	seen := map[string]bool{}
	for _, wk := range wellKnownLogs {
		path := filepath.Join(ad.Root, wk.path)
		if !readable(path) {
			continue
		}
		seen[wk.path] = true
		out = append(out, Candidate{
			Name:    wk.name,
			Type:    config.SourceFile,
			Path:    path,
			Decoder: parser.DecoderPlain,
			Owner:   owners.files[wk.path],
		})
	}

	// Files held open by log daemons outside the well-known set.
	for target, owner := range owners.files {
		if seen[target] {
			continue
		}
		path := filepath.Join(ad.Root, target)
		if !readable(path) {
			continue
		}
		out = append(out, Candidate{
			Name:    strings.TrimSuffix(filepath.Base(target), ".log"),
			Type:    config.SourceFile,
			Path:    path,
			Decoder: parser.DecoderPlain,
			Owner:   owner,
		})
	}

	if ad.journalAvailable() || owners.daemons["journald"] {
		out = append(out, Candidate{
			Name:    "journal",
			Type:    config.SourceJournald,
			Decoder: parser.DecoderJournalJSON,
			Owner:   "systemd-journald",
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (ad *AutoDiscover) journalAvailable() bool {
	for _, dir := range journalDirs {
		if fi, err := os.Stat(filepath.Join(ad.Root, dir)); err == nil && fi.IsDir() {
			return true
		}
	}
	return false
}

type processScan struct {
	daemons map[string]bool
	files   map[string]string // log file -> daemon
}

func (ad *AutoDiscover) scanProcesses() (processScan, error) {
	res := processScan{daemons: map[string]bool{}, files: map[string]string{}}
	entries, err := os.ReadDir(ad.ProcRoot)
	if err != nil {
		return res, fmt.Errorf("failed to read proc root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid := entry.Name()
		if _, err := strconv.Atoi(pid); err != nil {
			continue
		}

		commBytes, err := os.ReadFile(filepath.Join(ad.ProcRoot, pid, "comm"))
		if err != nil {
			continue
		}
		comm := strings.TrimSpace(string(commBytes))

		for daemon, re := range targetProcesses {
			if !re.MatchString(comm) {
				continue
			}
			res.daemons[daemon] = true
			for _, f := range ad.openLogs(pid) {
				res.files[f] = comm
			}
		}
	}
	return res, nil
}

// openLogs lists files under /var/log that pid has open.
func (ad *AutoDiscover) openLogs(pid string) []string {
	fdPath := filepath.Join(ad.ProcRoot, pid, "fd")
	entries, err := os.ReadDir(fdPath)
	if err != nil {
		return nil
	}

	var logs []string
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join(fdPath, entry.Name()))
		if err != nil {
			continue
		}
		if strings.HasPrefix(target, "/var/log/") && !strings.Contains(target, "/journal/") {
			logs = append(logs, target)
		}
	}
	return logs
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	return err == nil && fi.Mode().IsRegular()
}
