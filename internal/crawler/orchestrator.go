package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
	"github.com/JakeFAU/listing-crawler/internal/shutdown"
)

// Stats counts the work done by one run.
type Stats struct {
	PagesWalked    int `json:"pages_walked"`
	PagesFailed    int `json:"pages_failed"`
	URLsDiscovered int `json:"urls_discovered"`
	Processed      int `json:"processed"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	Recovered      int `json:"recovered"`
}

// Result is returned by Run.
type Result struct {
	Records     []Record
	Phase       Phase
	Interrupted bool
	Pending     int
	Completed   int
	Stats       Stats
}

// Done reports whether every discovered URL has been extracted, meaning the
// durable checkpoint and progress files may be discarded.
func (r Result) Done() bool {
	return r.Phase == PhaseDone
}

// Progress is a point-in-time view of a running crawl.
type Progress struct {
	Phase             Phase `json:"phase"`
	LastDiscoveryPage int   `json:"last_discovery_page"`
	TotalPages        int   `json:"total_pages"`
	Pending           int   `json:"pending"`
	Completed         int   `json:"completed"`
	Records           int   `json:"records"`
	InFlight          int   `json:"in_flight"`
	ShuttingDown      bool  `json:"shutting_down"`
	Stats             Stats `json:"stats"`
}

// Orchestrator drives the Discovering -> Extracting -> Done state machine.
// All checkpoint and record mutations happen under mu.
type Orchestrator struct {
	cfg         Config
	pager       DirectoryPager
	fetcher     PageFetcher
	extractor   Extractor
	checkpoints CheckpointStore
	records     RecordStore
	limiter     *ConcurrencyLimiter
	signal      *shutdown.Signal
	logger      *zap.Logger

	mu        sync.Mutex
	cp        *Checkpoint
	collected []Record
	failed    []string
	sinceSave int
	total     int
	stats     Stats
}

// NewOrchestrator wires the crawl collaborators together.
func NewOrchestrator(
	cfg Config,
	pager DirectoryPager,
	fetcher PageFetcher,
	extractor Extractor,
	checkpoints CheckpointStore,
	records RecordStore,
	signal *shutdown.Signal,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawler config: %w", err)
	}
	if pager == nil || fetcher == nil || extractor == nil {
		return nil, fmt.Errorf("pager, fetcher and extractor are required")
	}
	if checkpoints == nil || records == nil {
		return nil, fmt.Errorf("checkpoint and record stores are required")
	}
	if signal == nil {
		signal = shutdown.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:         cfg,
		pager:       pager,
		fetcher:     fetcher,
		extractor:   extractor,
		checkpoints: checkpoints,
		records:     records,
		limiter:     NewConcurrencyLimiter(cfg.Concurrency, cfg.RequestDelay, signal),
		signal:      signal,
		logger:      logger,
		cp:          NewCheckpoint(),
	}, nil
}

// Run loads durable state, finishes discovery if needed, extracts every
// pending URL, and persists progress along the way. ctx bounds network calls;
// graceful shutdown is driven by the Signal, which lets in-flight requests
// finish. Run never returns an error: failures are logged and left pending.
func (o *Orchestrator) Run(ctx context.Context) Result {
	o.load()

	if o.phase() == PhaseDiscovering {
		switch o.discover(ctx) {
		case discoveryInterrupted:
			o.logger.Info("discovery interrupted, progress saved")
			return o.finish(true)
		case discoveryAborted:
			o.logger.Warn("discovery stopped before any directory page loaded, progress saved")
			return o.finish(false)
		}
	} else {
		o.logger.Info("resuming extraction", zap.Int("remaining", o.remaining()))
	}

	interrupted := o.extract(ctx)
	return o.finish(interrupted)
}

// Progress returns a snapshot for status reporting.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Progress{
		Phase:             o.cp.Phase,
		LastDiscoveryPage: o.cp.LastDiscoveryPage,
		TotalPages:        o.cp.TotalPages,
		Pending:           len(o.cp.Remaining()),
		Completed:         len(o.cp.CompletedURLs),
		Records:           len(o.collected),
		InFlight:          o.limiter.Active(),
		ShuttingDown:      o.signal.Requested(),
		Stats:             o.stats,
	}
}

func (o *Orchestrator) load() {
	cp := o.checkpoints.Load()
	if cp == nil {
		cp = NewCheckpoint()
	}
	cp.Normalize()
	records := o.records.Load()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cp = cp
	o.collected = o.reconcileLocked(records)
	o.logger.Info("loaded crawl state",
		zap.String("phase", string(o.cp.Phase)),
		zap.Int("last_discovery_page", o.cp.LastDiscoveryPage),
		zap.Int("completed", len(o.cp.CompletedURLs)),
		zap.Int("pending", len(o.cp.PendingURLs)),
		zap.Int("records", len(o.collected)),
	)
}

// reconcileLocked makes the checkpoint and record collection agree after a
// crash between their two writes: duplicate records are dropped, records for
// URLs not marked completed are adopted, and completed URLs with no record go
// back to pending.
func (o *Orchestrator) reconcileLocked(records []Record) []Record {
	kept := make([]Record, 0, len(records))
	byURL := make(map[string]struct{}, len(records))
	adopted := 0
	for _, rec := range records {
		u := rec.URL()
		if u == "" {
			continue
		}
		if _, dup := byURL[u]; dup {
			continue
		}
		byURL[u] = struct{}{}
		if rec.ID() == "" {
			rec[FieldID] = DeriveRecordID(u)
		}
		if !o.cp.IsCompleted(u) {
			o.cp.MarkCompleted(u)
			adopted++
		}
		kept = append(kept, rec)
	}

	var orphaned []string
	for u := range o.cp.CompletedURLs {
		if _, ok := byURL[u]; !ok {
			orphaned = append(orphaned, u)
		}
	}
	for _, u := range orphaned {
		delete(o.cp.CompletedURLs, u)
		o.cp.PendingURLs = append(o.cp.PendingURLs, u)
	}
	o.cp.Normalize()

	if adopted > 0 || len(orphaned) > 0 || len(kept) != len(records) {
		o.logger.Warn("reconciled checkpoint with record collection",
			zap.Int("adopted", adopted),
			zap.Int("requeued", len(orphaned)),
			zap.Int("dropped_records", len(records)-len(kept)),
		)
	}
	if o.cp.Phase == PhaseDone && len(o.cp.PendingURLs) > 0 {
		o.cp.Phase = PhaseExtracting
	}
	return kept
}

func (o *Orchestrator) phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cp.Phase
}

func (o *Orchestrator) remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cp.Remaining())
}

func (o *Orchestrator) finish(interrupted bool) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cp.Normalize()
	if o.cp.Phase == PhaseExtracting && len(o.cp.PendingURLs) == 0 && len(o.failed) == 0 {
		o.cp.Phase = PhaseDone
	}
	o.persistAllLocked()

	o.stats.Failed = len(o.failed)
	res := Result{
		Records:     append([]Record(nil), o.collected...),
		Phase:       o.cp.Phase,
		Interrupted: interrupted || o.signal.Requested(),
		Pending:     len(o.cp.PendingURLs),
		Completed:   len(o.cp.CompletedURLs),
		Stats:       o.stats,
	}
	o.logger.Info("crawl finished",
		zap.String("phase", string(res.Phase)),
		zap.Bool("interrupted", res.Interrupted),
		zap.Int("records", len(res.Records)),
		zap.Int("succeeded", res.Stats.Succeeded),
		zap.Int("failed", res.Stats.Failed),
		zap.Int("pending", res.Pending),
	)
	return res
}

func (o *Orchestrator) persistCheckpointLocked() {
	err := o.checkpoints.Save(o.cp)
	metrics.ObserveSave("checkpoint", err)
	metrics.SetPending(len(o.cp.Remaining()))
	if err != nil {
		o.logger.Error("checkpoint save failed, continuing in memory", zap.Error(err))
	}
}

// persistAllLocked writes records before the checkpoint so a crash between
// the two writes leaves records that reconciliation can adopt.
func (o *Orchestrator) persistAllLocked() {
	err := o.records.Save(o.collected)
	metrics.ObserveSave("records", err)
	if err != nil {
		o.logger.Error("record collection save failed, continuing in memory", zap.Error(err))
	}
	o.persistCheckpointLocked()
}
