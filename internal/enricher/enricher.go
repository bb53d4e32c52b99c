package enricher

import (
	"log"
	"net"
	"os/user"
	"strconv"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/shirou/gopsutil/v3/process"

	"logsift/internal/parser"
)

// unsetID is the audit "not set" id ((uid_t)-1).
const unsetID = "4294967295"

// Enrichment is host context looked up for one entry. It is stored next to
// the entry and never merged into it.
type Enrichment struct {
	User         string `json:"user,omitempty"`
	LoginUser    string `json:"login_user,omitempty"`
	ProcessName  string `json:"process_name,omitempty"`
	ProcessAlive bool   `json:"process_alive,omitempty"`
	Addr         string `json:"addr,omitempty"`
	NetworkType  string `json:"network_type,omitempty"`
	Country      string `json:"country,omitempty"`
	ASN          string `json:"asn,omitempty"`
	Banned       bool   `json:"banned,omitempty"`
}

// BanChecker reports whether an address is on a ban list.
type BanChecker interface {
	Banned(ip string) bool
}

type Enricher struct {
	userCache map[string]string // UID -> Username
	mu        sync.RWMutex
	cityDB    *geoip2.Reader
	asnDB     *geoip2.Reader
	bans      BanChecker

	// lookupProcess is replaced in tests.
	lookupProcess func(pid int) (string, bool)
	lookupUser    func(uid string) (string, error)
}

func NewEnricher(cityDBPath, asnDBPath string, bans BanChecker) *Enricher {
	e := &Enricher{
		userCache:     make(map[string]string),
		bans:          bans,
		lookupProcess: processName,
		lookupUser:    lookupUsername,
	}

	if cityDBPath != "" {
		db, err := geoip2.Open(cityDBPath)
		if err != nil {
			log.Printf("Enricher: GeoIP city db %s: %v", cityDBPath, err)
		} else {
			e.cityDB = db
		}
	}
	if asnDBPath != "" {
		db, err := geoip2.Open(asnDBPath)
		if err != nil {
			log.Printf("Enricher: GeoIP ASN db %s: %v", asnDBPath, err)
		} else {
			e.asnDB = db
		}
	}

	return e
}

// Close should be called on shutdown
func (e *Enricher) Close() {
	if e.cityDB != nil {
		e.cityDB.Close()
	}
	if e.asnDB != nil {
		e.asnDB.Close()
	}
}

// Enrich resolves the uid, auid, pid and addr fields of entry.
func (e *Enricher) Enrich(entry *parser.ParsedLogEntry) Enrichment {
	var out Enrichment
	if entry == nil {
		return out
	}

	if uid, ok := entry.Text("uid"); ok {
		out.User = e.ResolveUser(uid)
	}
	if auid, ok := entry.Text("auid"); ok {
		out.LoginUser = e.ResolveUser(auid)
	}

	pid := 0
	if entry.PID != nil {
		pid = *entry.PID
	} else if n, ok := entry.Int(parser.FieldProcessID); ok {
		pid = n
	}
	if pid > 0 {
		out.ProcessName, out.ProcessAlive = e.lookupProcess(pid)
	}

	if addr, ok := entry.Text("addr"); ok && net.ParseIP(addr) != nil {
		out.Addr = addr
		out.NetworkType = e.ClassifyIP(addr)
		if out.NetworkType == "external" {
			out.Country, out.ASN = e.GeoEnrich(addr)
		}
		if e.bans != nil {
			out.Banned = e.bans.Banned(addr)
		}
	}
	return out
}

// GeoEnrich returns Country ISO code and ASN name if available
func (e *Enricher) GeoEnrich(ipStr string) (country string, asn string) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", ""
	}

	if e.cityDB != nil {
		record, err := e.cityDB.Country(ip)
		if err == nil {
			country = record.Country.IsoCode
		}
	}
	if e.asnDB != nil {
		record, err := e.asnDB.ASN(ip)
		if err == nil {
			asn = record.AutonomousSystemOrganization
		}
	}
	return country, asn
}

// ResolveUser translates a UID string to a Username.
// Returns the input UID if resolution fails.
func (e *Enricher) ResolveUser(uid string) string {
	switch uid {
	case "", "-", "?":
		return ""
	case unsetID:
		return "unset"
	}

	e.mu.RLock()
	name, exists := e.userCache[uid]
	e.mu.RUnlock()
	if exists {
		return name
	}

	name, err := e.lookupUser(uid)
	if err != nil {
		name = uid
	}

	e.mu.Lock()
	e.userCache[uid] = name
	e.mu.Unlock()
	return name
}

// ClassifyIP returns "internal", "external", or "loopback"
func (e *Enricher) ClassifyIP(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "invalid"
	}
	if ip.IsLoopback() {
		return "loopback"
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return "internal"
	}
	return "external"
}

func lookupUsername(uid string) (string, error) {
	u, err := user.LookupId(uid)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func processName(pid int) (string, bool) {
	if pid > int(^uint32(0)>>1) {
		return "", false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", false
	}
	name, err := proc.Name()
	if err != nil {
		return strconv.Itoa(pid), true
	}
	return name, true
}
