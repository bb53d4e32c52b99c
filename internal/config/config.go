package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"logsift/internal/parser"
)

// Source types.
const (
	SourceFile     = "file"
	SourceJournald = "journald"
	SourceSyslog   = "syslog"
)

const DefaultConfigPath = "/etc/logsift/config.yaml"

// SourceDef describes one log input. For syslog sources Path is the listen
// address; for journald it is ignored.
type SourceDef struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Decoder string `yaml:"decoder,omitempty" json:"decoder,omitempty"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// FileConfig is the part of the configuration that lives in the YAML file
// and can be reloaded at runtime.
type FileConfig struct {
	Sources    []SourceDef        `yaml:"sources"`
	AppMarkers []parser.AppMarker `yaml:"app_markers"`
}

type Config struct {
	Port          int
	Workers       int
	QueueSize     int
	DBPath        string
	RetentionDays int
	WebhookURL    string
	LokiURL       string

	GeoIPCityPath string
	GeoIPASNPath  string

	CrowdSecAPIKey string
	CrowdSecAPIURL string

	ErrorThreshold int
	CrashThreshold int

	ConfigPath string
	FileConfig
}

// Load reads the environment and the YAML file named by LOGSIFT_CONFIG.
// A missing file is not an error; built-in sources are used instead.
func Load() (*Config, error) {
	cfg := fromEnv()
	fc, err := LoadFile(cfg.ConfigPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config: %s not found, using default sources", cfg.ConfigPath)
		cfg.FileConfig = defaultFileConfig()
	case err != nil:
		return nil, err
	default:
		cfg.FileConfig = *fc
	}
	return cfg, nil
}

// LoadFrom reads the YAML file at path and applies environment settings.
// Unlike Load, the file must exist.
func LoadFrom(path string) (*Config, error) {
	cfg := fromEnv()
	cfg.ConfigPath = path
	fc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.FileConfig = *fc
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Port:           getEnvInt("LOGSIFT_PORT", 9102),
		Workers:        getEnvInt("LOGSIFT_WORKERS", 5),
		QueueSize:      getEnvInt("LOGSIFT_QUEUE_SIZE", 1000),
		DBPath:         getEnv("LOGSIFT_DB_PATH", "/var/lib/logsift/logsift.db"),
		RetentionDays:  getEnvInt("LOGSIFT_RETENTION_DAYS", 7),
		WebhookURL:     getEnv("LOGSIFT_WEBHOOK_URL", ""),
		LokiURL:        getEnv("LOGSIFT_LOKI_URL", ""),
		GeoIPCityPath:  getEnv("LOGSIFT_GEOIP_CITY_PATH", ""),
		GeoIPASNPath:   getEnv("LOGSIFT_GEOIP_ASN_PATH", ""),
		CrowdSecAPIKey: getEnv("LOGSIFT_CROWDSEC_API_KEY", ""),
		CrowdSecAPIURL: getEnv("LOGSIFT_CROWDSEC_API_URL", "http://127.0.0.1:8080/"),
		ErrorThreshold: getEnvInt("LOGSIFT_ERROR_THRESHOLD", 20),
		CrashThreshold: getEnvInt("LOGSIFT_CRASH_THRESHOLD", 5),
		ConfigPath:     getEnv("LOGSIFT_CONFIG", DefaultConfigPath),
	}
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Sources: []SourceDef{
			{Name: "journal", Type: SourceJournald, Decoder: parser.DecoderJournalJSON, Enabled: true},
			{Name: "syslog", Type: SourceSyslog, Path: ":5140", Decoder: parser.DecoderRFC3164, Enabled: true},
		},
		AppMarkers: append([]parser.AppMarker(nil), parser.DefaultAppMarkers...),
	}
}

// LoadFile reads and validates a YAML config file. Sources without a decoder
// get the default decoder for their type.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &fc, nil
}

func (fc *FileConfig) normalize() error {
	seen := make(map[string]bool, len(fc.Sources))
	for i := range fc.Sources {
		src := &fc.Sources[i]
		if src.Name == "" {
			return fmt.Errorf("source %d: missing name", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("source %q: duplicate name", src.Name)
		}
		seen[src.Name] = true

		switch src.Type {
		case SourceFile:
			if src.Path == "" {
				return fmt.Errorf("source %q: file source needs a path", src.Name)
			}
		case SourceJournald:
		case SourceSyslog:
			if src.Path == "" {
				src.Path = ":5140"
			}
		default:
			return fmt.Errorf("source %q: unknown type %q", src.Name, src.Type)
		}

		if src.Decoder == "" {
			src.Decoder = defaultDecoder(src.Type)
		}
		if _, err := parser.Get(src.Decoder); err != nil {
			return fmt.Errorf("source %q: %w", src.Name, err)
		}
	}
	if fc.AppMarkers == nil {
		fc.AppMarkers = append([]parser.AppMarker(nil), parser.DefaultAppMarkers...)
	}
	return nil
}

func defaultDecoder(sourceType string) string {
	switch sourceType {
	case SourceJournald:
		return parser.DecoderJournalJSON
	case SourceSyslog:
		return parser.DecoderRFC3164
	default:
		return parser.DecoderPlain
	}
}

// EnabledSources returns the sources with Enabled set.
func (fc FileConfig) EnabledSources() []SourceDef {
	var out []SourceDef
	for _, s := range fc.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Live holds the current FileConfig for concurrent readers while
// WatchConfig swaps in reloaded versions.
type Live struct {
	v atomic.Pointer[FileConfig]
}

func NewLive(fc FileConfig) *Live {
	l := &Live{}
	l.v.Store(&fc)
	return l
}

func (l *Live) Load() *FileConfig    { return l.v.Load() }
func (l *Live) Store(fc *FileConfig) { l.v.Store(fc) }

func (l *Live) EnabledSources() []SourceDef {
	return l.v.Load().EnabledSources()
}

// WatchConfig calls fn with the freshly loaded file whenever ConfigPath
// changes. Invalid files are logged and skipped. It returns once the watcher
// is installed; watching stops when ctx is done.
func (c *Config) WatchConfig(ctx context.Context, fn func(*FileConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	// Watch the directory: editors and config management replace the file
	// by rename, which drops a watch on the file itself.
	dir := filepath.Dir(c.ConfigPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(c.ConfigPath)
	go func() {
		defer w.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(200 * time.Millisecond)
				}
			case <-debounce:
				debounce = nil
				fc, err := LoadFile(c.ConfigPath)
				if err != nil {
					log.Printf("Config: reload failed: %v", err)
					continue
				}
				log.Printf("Config: reloaded %s (%d sources, %d app markers)", c.ConfigPath, len(fc.Sources), len(fc.AppMarkers))
				fn(fc)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("Config: watcher error: %v", err)
			}
		}
	}()
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
