package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

type discoveryOutcome int

const (
	discoveryComplete discoveryOutcome = iota
	// discoveryInterrupted means shutdown stopped the walk. The checkpoint
	// resumes from LastDiscoveryPage+1 and retries its FailedPages.
	discoveryInterrupted
	// discoveryAborted means the first page of a fresh walk could not be
	// fetched, so the directory size is unknown.
	discoveryAborted
)

// discover walks directory pages in increasing order, appending newly seen
// record URLs to the pending set.
func (o *Orchestrator) discover(ctx context.Context) discoveryOutcome {
	o.mu.Lock()
	next := o.cfg.StartPage
	fresh := true
	if o.cp.LastDiscoveryPage >= next {
		next = o.cp.LastDiscoveryPage + 1
		fresh = false
		o.logger.Info("resuming discovery",
			zap.Int("page", next),
			zap.Ints("failed_pages", o.cp.FailedPages),
		)
	}
	total := o.capTotal(o.cp.TotalPages)
	known := make(map[string]struct{}, len(o.cp.PendingURLs))
	for _, u := range o.cp.PendingURLs {
		known[u] = struct{}{}
	}
	o.mu.Unlock()

	o.logger.Info("phase 1: collecting record URLs",
		zap.Int("from_page", next),
		zap.Int("total_pages", total),
	)

	sinceSave := 0
	first := true
	for page := next; total == 0 || page <= total; page++ {
		if o.signal.Requested() {
			return o.interruptDiscovery()
		}
		if !first && !o.signal.Sleep(o.cfg.RequestDelay) {
			return o.interruptDiscovery()
		}
		first = false

		p, err := o.fetcher.Fetch(ctx, o.pager.PageURL(page))
		failed := false
		switch {
		case err != nil && IsCanceled(err):
			return o.interruptDiscovery()
		case err != nil && total == 0 && fresh:
			o.logger.Error("first directory page failed, stopping discovery",
				zap.Int("page", page),
				zap.Error(err),
			)
			metrics.ObserveDirectoryPage("failed")
			o.mu.Lock()
			o.stats.PagesFailed++
			o.persistCheckpointLocked()
			o.mu.Unlock()
			return discoveryAborted
		case err != nil:
			o.logger.Warn("directory page failed", zap.Int("page", page), zap.Error(err))
			metrics.ObserveDirectoryPage("failed")
			failed = true
			if total == 0 {
				total = o.capTotal(o.cfg.DefaultTotalPages)
				o.logger.Warn("pagination unavailable, using default bound", zap.Int("total_pages", total))
			}
		default:
			if total == 0 {
				total = o.resolveTotal(p)
				o.logger.Info("resolved directory size", zap.Int("total_pages", total))
			}
			added := o.absorb(known, o.extractor.RecordURLs(p))
			metrics.ObserveDirectoryPage("ok")
			o.logger.Info("directory page walked",
				zap.Int("page", page),
				zap.Int("total_pages", total),
				zap.Int("new_urls", added),
				zap.Int("pending", len(known)),
			)
		}

		o.mu.Lock()
		if failed {
			o.cp.AddFailedPage(page)
		}
		o.cp.LastDiscoveryPage = page
		o.cp.TotalPages = total
		o.stats.PagesWalked++
		sinceSave++
		if sinceSave >= o.cfg.DiscoveryCheckpointInterval {
			o.persistCheckpointLocked()
			sinceSave = 0
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	failedPages := append([]int(nil), o.cp.FailedPages...)
	o.mu.Unlock()
	if len(failedPages) > 0 {
		if interrupted := o.retryPages(ctx, known, failedPages); interrupted {
			return o.interruptDiscovery()
		}
	}

	o.mu.Lock()
	o.cp.Normalize()
	o.cp.Phase = PhaseExtracting
	o.persistCheckpointLocked()
	pending := len(o.cp.PendingURLs)
	completed := len(o.cp.CompletedURLs)
	o.mu.Unlock()

	o.logger.Info("discovery complete",
		zap.Int("unique_pending", pending),
		zap.Int("already_completed", completed),
	)
	return discoveryComplete
}

// retryPages gives each failed directory page one more attempt. A page leaves
// the checkpoint's retry list once that attempt has run, whatever its result.
func (o *Orchestrator) retryPages(ctx context.Context, known map[string]struct{}, pages []int) bool {
	o.logger.Info("retrying failed directory pages", zap.Int("count", len(pages)))
	for _, page := range pages {
		if !o.signal.Sleep(o.cfg.RetryFailedDelay) {
			return true
		}
		p, err := o.fetcher.Fetch(ctx, o.pager.PageURL(page))
		if err != nil {
			if IsCanceled(err) {
				return true
			}
			o.mu.Lock()
			o.stats.PagesFailed++
			o.cp.ClearFailedPage(page)
			o.mu.Unlock()
			o.logger.Warn("directory page failed again, skipping", zap.Int("page", page), zap.Error(err))
			continue
		}
		added := o.absorb(known, o.extractor.RecordURLs(p))
		o.mu.Lock()
		o.cp.ClearFailedPage(page)
		o.mu.Unlock()
		o.logger.Info("directory page recovered", zap.Int("page", page), zap.Int("new_urls", added))
	}
	return false
}

func (o *Orchestrator) interruptDiscovery() discoveryOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistCheckpointLocked()
	return discoveryInterrupted
}

// absorb appends urls that are neither completed nor already pending.
func (o *Orchestrator) absorb(known map[string]struct{}, urls []string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	added := 0
	for _, u := range urls {
		if u == "" || o.cp.IsCompleted(u) {
			continue
		}
		if _, seen := known[u]; seen {
			continue
		}
		known[u] = struct{}{}
		o.cp.PendingURLs = append(o.cp.PendingURLs, u)
		added++
	}
	o.stats.URLsDiscovered += added
	metrics.AddDiscovered(added)
	return added
}

func (o *Orchestrator) resolveTotal(p Page) int {
	total, ok := o.extractor.TotalPages(p)
	if !ok || total <= 0 {
		total = o.cfg.DefaultTotalPages
	}
	return o.capTotal(total)
}

// capTotal applies the configured end page. Zero means unresolved.
func (o *Orchestrator) capTotal(total int) int {
	if total > 0 && o.cfg.EndPage > 0 && total > o.cfg.EndPage {
		return o.cfg.EndPage
	}
	return total
}
