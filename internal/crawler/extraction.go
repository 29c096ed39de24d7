package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// extract fetches and parses every pending URL through the limiter, then
// retries same-run failures once. It returns true when shutdown stopped it.
func (o *Orchestrator) extract(ctx context.Context) bool {
	o.mu.Lock()
	work := o.cp.Remaining()
	o.total = len(work)
	o.failed = nil
	o.mu.Unlock()

	o.logger.Info("phase 2: extracting records",
		zap.Int("pending", len(work)),
		zap.Int("concurrency", o.limiter.Slots()),
	)

	o.dispatch(ctx, work, false)
	o.limiter.Wait()
	if o.signal.Requested() {
		return true
	}

	o.mu.Lock()
	retry := o.failed
	o.failed = nil
	o.mu.Unlock()
	if len(retry) == 0 {
		return false
	}

	o.logger.Info("retrying failed URLs", zap.Int("count", len(retry)))
	for i, u := range retry {
		if !o.signal.Sleep(o.cfg.RetryFailedDelay) {
			o.requeueFailures(retry[i:])
			break
		}
		if err := o.limiter.Go(o.unit(ctx, u, true)); err != nil {
			o.requeueFailures(retry[i:])
			break
		}
	}
	o.limiter.Wait()
	return o.signal.Requested()
}

func (o *Orchestrator) dispatch(ctx context.Context, urls []string, retry bool) {
	for _, u := range urls {
		if o.signal.Requested() {
			o.logger.Info("shutdown requested, no new work will be dispatched")
			return
		}
		if err := o.limiter.Go(o.unit(ctx, u, retry)); err != nil {
			return
		}
	}
}

// requeueFailures keeps failures that were never retried in the failure list
// so the run does not report Done.
func (o *Orchestrator) requeueFailures(urls []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, urls...)
}

// unit returns the work for one URL: fetch, extract, and record the outcome.
// A panic inside the unit is converted into a per-URL failure.
func (o *Orchestrator) unit(ctx context.Context, u string, retry bool) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				o.fail(u, fmt.Errorf("panic while processing: %v", r), retry)
			}
		}()

		page, err := o.fetcher.Fetch(ctx, u)
		if err != nil {
			if IsCanceled(err) {
				o.logger.Debug("fetch abandoned for shutdown", zap.String("url", u))
				return
			}
			o.fail(u, err, retry)
			return
		}
		rec, ok := o.extractor.Record(page)
		if !ok {
			o.fail(u, ErrNoRecord, retry)
			return
		}
		o.complete(u, rec, retry)
	}
}

// complete is the serialized mark-complete step.
func (o *Orchestrator) complete(u string, rec Record, retry bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cp.IsCompleted(u) {
		return
	}
	if rec == nil {
		rec = Record{}
	}
	rec[FieldURL] = u
	if rec.ID() == "" {
		rec[FieldID] = DeriveRecordID(u)
	}
	o.collected = append(o.collected, rec)
	o.cp.MarkCompleted(u)
	o.stats.Succeeded++
	metrics.ObserveRecord("ok")
	if retry {
		o.stats.Recovered++
	} else {
		o.stats.Processed++
		o.reportLocked()
	}

	o.sinceSave++
	if o.sinceSave >= o.cfg.CheckpointInterval {
		o.cp.Normalize()
		o.persistAllLocked()
		o.sinceSave = 0
		o.logger.Info("checkpoint saved", zap.Int("records", len(o.collected)))
	}
}

func (o *Orchestrator) fail(u string, err error, retry bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, u)
	metrics.ObserveRecord("failed")
	if retry {
		o.logger.Warn("retry failed, URL stays pending", zap.String("url", u), zap.Error(err))
		return
	}
	o.logger.Warn("record failed", zap.String("url", u), zap.Error(err))
	o.stats.Processed++
	o.reportLocked()
}

func (o *Orchestrator) reportLocked() {
	n := o.stats.Processed
	if n%o.cfg.ProgressInterval != 0 && n != o.total {
		return
	}
	o.logger.Info("progress",
		zap.Int("processed", n),
		zap.Int("total", o.total),
		zap.Int("succeeded", o.stats.Succeeded),
		zap.Int("failed", len(o.failed)),
	)
}
