package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"logsift/internal/config"
	"logsift/internal/parser"
	"logsift/internal/storage"
)

const maxParseBody = 1 << 20

// SourceLister reports the configured sources.
type SourceLister interface {
	EnabledSources() []config.SourceDef
}

// API holds shared state for all handlers
type API struct {
	Store   storage.Store
	Sources SourceLister
	// Parser returns the parser currently used by the pipeline.
	Parser func() *parser.Parser
	start  time.Time
}

func NewAPI(store storage.Store, sources SourceLister, p func() *parser.Parser) *API {
	if p == nil {
		p = func() *parser.Parser { return parser.New() }
	}
	return &API{Store: store, Sources: sources, Parser: p, start: time.Now()}
}

// RegisterRoutes mounts all API endpoints on the given mux
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.cors(a.handleHealth))
	mux.HandleFunc("GET /api/entries", a.cors(a.handleListEntries))
	mux.HandleFunc("GET /api/entries/{id}", a.cors(a.handleGetEntry))
	mux.HandleFunc("GET /api/stats", a.cors(a.handleStats))
	mux.HandleFunc("POST /api/parse", a.cors(a.handleParse))
	mux.HandleFunc("GET /api/decoders", a.cors(a.handleDecoders))
	mux.HandleFunc("GET /api/sources", a.cors(a.handleSources))
	mux.HandleFunc("OPTIONS /api/", a.cors(func(http.ResponseWriter, *http.Request) {}))
}

// ── CORS middleware ──────────────────────────────────────────────
func (a *API) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// ── Health ───────────────────────────────────────────────────────

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sources := 0
	if a.Sources != nil {
		sources = len(a.Sources.EnabledSources())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"sources":    sources,
		"decoders":   len(parser.AvailableDecoders()),
		"uptime_sec": int(time.Since(a.start).Seconds()),
	})
}

// ── Entries ──────────────────────────────────────────────────────

func (a *API) handleListEntries(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := a.Store.ListRecords(opts)
	if err != nil {
		log.Printf("API: list records: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to list entries"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func listOptsFromQuery(r *http.Request) (storage.ListOpts, error) {
	q := r.URL.Query()
	opts := storage.ListOpts{
		Level:    q.Get("level"),
		Category: q.Get("category"),
		Service:  q.Get("service"),
		Tag:      q.Get("tag"),
		Source:   q.Get("source"),
	}
	if opts.Level != "" && !parser.IsLevel(strings.ToUpper(opts.Level)) {
		return opts, fmt.Errorf("unknown level %q", opts.Level)
	}

	var err error
	if opts.Page, err = intParam(q.Get("page")); err != nil {
		return opts, fmt.Errorf("page: %w", err)
	}
	if opts.PageSize, err = intParam(q.Get("page_size")); err != nil {
		return opts, fmt.Errorf("page_size: %w", err)
	}
	if opts.Since, err = timeParam(q.Get("since")); err != nil {
		return opts, fmt.Errorf("since: %w", err)
	}
	if opts.Until, err = timeParam(q.Get("until")); err != nil {
		return opts, fmt.Errorf("until: %w", err)
	}
	return opts, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer, got %q", s)
	}
	return n, nil
}

func timeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be RFC3339, got %q", s)
	}
	return t, nil
}

func (a *API) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Store.GetRecord(r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		log.Printf("API: get record: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load entry"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ── Stats ────────────────────────────────────────────────────────

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := a.Store.GetStats()
	if err != nil {
		log.Printf("API: stats: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to compute stats"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ── Parse ────────────────────────────────────────────────────────

type parseResponse struct {
	Entry    *parser.ParsedLogEntry `json:"entry"`
	Category parser.CategoryResult  `json:"category"`
	Shape    string                 `json:"shape"`
}

// handleParse parses the request body as one raw line without storing it.
// ?decoder= applies a source decoder first.
func (a *API) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxParseBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxParseBody {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("line too long"))
		return
	}
	line := strings.TrimRight(string(body), "\r\n")

	if name := r.URL.Query().Get("decoder"); name != "" {
		dec, err := parser.Get(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		decoded, ok := dec.Decode(line)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("decoder %s rejected the record", name))
			return
		}
		line = decoded
	}

	p := a.Parser()
	entry := p.Parse(line)
	writeJSON(w, http.StatusOK, parseResponse{
		Entry:    entry,
		Category: p.Categorize(entry),
		Shape:    parser.ClassifyLine(line).Kind.String(),
	})
}

// ── Decoders / Sources ───────────────────────────────────────────

func (a *API) handleDecoders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, parser.AvailableDecoders())
}

func (a *API) handleSources(w http.ResponseWriter, _ *http.Request) {
	sources := []config.SourceDef{}
	if a.Sources != nil {
		sources = append(sources, a.Sources.EnabledSources()...)
	}
	writeJSON(w, http.StatusOK, sources)
}

// ── Helpers ──────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
