package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"logsift/internal/anomaly"
	"logsift/internal/collector"
	"logsift/internal/enricher"
	"logsift/internal/parser"
	"logsift/internal/storage"
)

// Job is one decoded line read from a source.
type Job struct {
	Source string
	Line   string
}

// RecordSaver persists processed records.
type RecordSaver interface {
	SaveRecord(rec *storage.Record) error
}

// CrashNotifier is told about every stored record; it decides whether to alert.
type CrashNotifier interface {
	NotifyCrash(rec *storage.Record) bool
}

// RecordPusher forwards stored records to an external sink.
type RecordPusher interface {
	PushRecord(rec *storage.Record) error
}

// Deps are the pipeline stages a Pool runs. Nil stages are skipped.
type Deps struct {
	Collector *collector.LogCollector
	Anomaly   *anomaly.AnomalyDetector
	Enricher  *enricher.Enricher
	Store     RecordSaver
	Alerts    CrashNotifier
	Loki      RecordPusher
}

type Pool struct {
	JobQueue    chan Job
	WorkerCount int
	Deps

	parser  atomic.Pointer[parser.Parser]
	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewPool(workers, queueSize int, p *parser.Parser, deps Deps) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1000
	}
	if p == nil {
		p = parser.New()
	}
	pool := &Pool{
		JobQueue:    make(chan Job, queueSize),
		WorkerCount: workers,
		Deps:        deps,
		stopped:     make(chan struct{}),
		now:         time.Now,
	}
	pool.parser.Store(p)
	return pool
}

// SetParser swaps the parser used for new jobs, e.g. after the app markers
// were reloaded.
func (p *Pool) SetParser(ps *parser.Parser) {
	if ps != nil {
		p.parser.Store(ps)
	}
}

// Parser returns the parser currently in use.
func (p *Pool) Parser() *parser.Parser {
	return p.parser.Load()
}

// Start launches the workers. They exit when ctx is done or when Stop has
// drained the queue.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	log.Printf("Worker pool started with %d workers", p.WorkerCount)
}

// Stop closes the queue, waits for queued jobs to finish and returns.
// Submit must not be called concurrently with or after Stop.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.stopped)
		close(p.JobQueue)
	})
	p.wg.Wait()
	log.Println("Worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.JobQueue:
			if !ok {
				return
			}
			p.Process(job)
		}
	}
}

// Submit queues job, blocking while the queue is full. It returns ctx.Err()
// if ctx is done first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case <-p.stopped:
		return context.Canceled
	default:
	}
	select {
	case p.JobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs the whole pipeline for one job and returns the stored record.
func (p *Pool) Process(job Job) *storage.Record {
	ps := p.parser.Load()

	// 1. Parse and categorize
	entry := ps.Parse(job.Line)
	shape := parser.ClassifyLine(job.Line)
	rec := &storage.Record{
		ObservedAt: p.now(),
		Source:     job.Source,
		Shape:      shape.Kind.String(),
		Entry:      entry,
		Category:   ps.Categorize(entry),
	}
	// Raw audit.log records carry their own event time.
	if entry.Timestamp == nil && shape.Kind == parser.ShapeAuditOnly {
		rec.ObservedAt = shape.EventTime
	}

	// 2. Enrichment
	if p.Enricher != nil {
		rec.Enrichment = p.Enricher.Enrich(entry)
	}

	// 3. Anomaly detection
	if p.Anomaly != nil {
		rec.Anomaly = string(p.Anomaly.Check(rec.Service(), rec.Category))
	}

	// 4. Metrics
	if p.Collector != nil {
		p.Collector.Observe(rec)
	}

	// 5. Persist
	if p.Store != nil {
		if err := p.Store.SaveRecord(rec); err != nil {
			log.Printf("Worker: save record from %s: %v", job.Source, err)
			if p.Collector != nil {
				p.Collector.StoreErrors.Inc()
			}
			return rec
		}
	}

	// 6. Fan out
	if p.Alerts != nil {
		p.Alerts.NotifyCrash(rec)
	}
	if p.Loki != nil {
		if err := p.Loki.PushRecord(rec); err != nil {
			log.Printf("Worker: %v", err)
		}
	}
	return rec
}
