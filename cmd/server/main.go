package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logsift/internal/alerts"
	"logsift/internal/anomaly"
	"logsift/internal/api"
	"logsift/internal/collector"
	"logsift/internal/config"
	"logsift/internal/discovery"
	"logsift/internal/enricher"
	"logsift/internal/intelligence"
	"logsift/internal/journald"
	"logsift/internal/loki"
	"logsift/internal/parser"
	"logsift/internal/storage"
	"logsift/internal/syslog"
	"logsift/internal/tailer"
	"logsift/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration (env overrides, YAML for sources and markers)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("LOGSIFT_DISCOVER") == "true" {
		addDiscoveredSources(cfg)
	}
	log.Printf("Starting logsift on port %d...", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1a. Storage
	store, err := storage.NewBoltStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	go pruneLoop(ctx, store, time.Duration(cfg.RetentionDays)*24*time.Hour)

	// 2. Core components
	var bans enricher.BanChecker
	if cfg.CrowdSecAPIKey != "" {
		cb := intelligence.NewCrowdSecBouncer(cfg.CrowdSecAPIKey, cfg.CrowdSecAPIURL)
		if err := cb.Start(); err != nil {
			log.Printf("CrowdSec: disabled, init failed: %v", err)
		} else {
			cb.Register(prometheus.DefaultRegisterer)
			go cb.Run(ctx)
			bans = cb
		}
	}

	enrich := enricher.NewEnricher(cfg.GeoIPCityPath, cfg.GeoIPASNPath, bans)
	defer enrich.Close()

	coll := collector.NewLogCollector()
	coll.Register(prometheus.DefaultRegisterer)

	anomalyDetector := anomaly.NewAnomalyDetector(cfg.ErrorThreshold, cfg.CrashThreshold)
	go anomalyDetector.Run(ctx)

	// 2a. Worker Pool
	deps := worker.Deps{
		Collector: coll,
		Anomaly:   anomalyDetector,
		Enricher:  enrich,
		Store:     store,
		Alerts:    alerts.NewDispatcher(cfg.WebhookURL),
	}
	if lp := loki.NewPusher(cfg.LokiURL); lp != nil {
		deps.Loki = lp
	}
	wp := worker.NewPool(cfg.Workers, cfg.QueueSize, parser.New(parser.WithAppMarkers(cfg.AppMarkers)), deps)
	// Workers outlive ctx so Stop can drain what the sources queued.
	wp.Start(context.Background())

	// 2b. Hot reload of app markers. Source changes need a restart.
	live := config.NewLive(cfg.FileConfig)
	if err := cfg.WatchConfig(ctx, func(fc *config.FileConfig) {
		live.Store(fc)
		wp.SetParser(parser.New(parser.WithAppMarkers(fc.AppMarkers)))
	}); err != nil {
		log.Printf("Config: hot reload disabled: %v", err)
	}

	// 3. Sources
	log.Printf("Registered decoders: %v", parser.AvailableDecoders())
	var sources sync.WaitGroup
	for _, src := range cfg.Sources {
		if !src.Enabled {
			log.Printf("  [SKIP] %s (disabled)", src.Name)
			continue
		}
		dec, err := parser.Get(src.Decoder)
		if err != nil {
			log.Printf("  [ERR]  %s: %v", src.Name, err)
			continue
		}
		log.Printf("  [OK]   %s (%s/%s) %s", src.Name, src.Type, src.Decoder, src.Path)
		startSource(ctx, &sources, src, dec, wp)
	}

	// 4. HTTP: API + metrics
	mux := http.NewServeMux()
	api.NewAPI(store, live, wp.Parser).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	sources.Wait()
	wp.Stop()
}

func startSource(ctx context.Context, wg *sync.WaitGroup, src config.SourceDef, dec parser.Decoder, wp *worker.Pool) {
	switch src.Type {
	case config.SourceFile:
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tailer.Follow(ctx, src.Name, src.Path, dec, wp, tailer.Options{Poll: true}); err != nil {
				log.Printf("Tailer: %s: %v", src.Name, err)
			}
		}()
	case config.SourceJournald:
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := journald.NewReader(src.Name, dec).Run(ctx, wp); err != nil {
				log.Printf("%v", err)
			}
		}()
	case config.SourceSyslog:
		s := syslog.NewSyslogServer(src.Name, src.Path, dec)
		if err := s.Start(ctx, wp); err != nil {
			log.Printf("Syslog: %s: %v", src.Name, err)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Wait()
		}()
	}
}

func addDiscoveredSources(cfg *config.Config) {
	found, err := discovery.NewAutoDiscover().Scan()
	if err != nil {
		log.Printf("Discovery: %v", err)
		return
	}
	have := map[string]bool{}
	for _, s := range cfg.Sources {
		have[s.Name] = true
		if s.Type == config.SourceJournald {
			have["journal"] = true
		}
	}
	for _, c := range found {
		if have[c.Name] {
			continue
		}
		log.Printf("Discovery: adding %s (%s) %s", c.Name, c.Type, c.Path)
		cfg.Sources = append(cfg.Sources, c.Source())
	}
}

func pruneLoop(ctx context.Context, store *storage.BoltStore, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if _, err := store.DeleteOldRecords(retention); err != nil {
			log.Printf("BoltStore: prune failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
