package crawler

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
	"github.com/JakeFAU/listing-crawler/internal/shutdown"
)

// ConcurrencyLimiter bounds how many record fetches run at once and makes each
// unit wait a pacing delay after taking its slot, before any network request.
type ConcurrencyLimiter struct {
	slots  int64
	sem    *semaphore.Weighted
	pacing time.Duration
	signal *shutdown.Signal
	wg     sync.WaitGroup

	active atomic.Int64
	peak   atomic.Int64
}

// NewConcurrencyLimiter returns a limiter with the given slot count (minimum 1).
func NewConcurrencyLimiter(slots int, pacing time.Duration, signal *shutdown.Signal) *ConcurrencyLimiter {
	if slots <= 0 {
		slots = 1
	}
	if signal == nil {
		signal = shutdown.New()
	}
	return &ConcurrencyLimiter{
		slots:  int64(slots),
		sem:    semaphore.NewWeighted(int64(slots)),
		pacing: pacing,
		signal: signal,
	}
}

// Go blocks until a slot is free, then runs work on its own goroutine after
// the pacing delay. It returns ErrShutdown without running work when shutdown
// is requested before a slot is acquired. If shutdown arrives during the
// pacing delay, the slot is released and work is skipped.
func (l *ConcurrencyLimiter) Go(work func()) error {
	if l.signal.Requested() {
		return ErrShutdown
	}
	if err := l.sem.Acquire(l.signal.Context(), 1); err != nil {
		return ErrShutdown
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.sem.Release(1)
		if !l.signal.Sleep(l.pacing) {
			return
		}
		l.enter()
		defer l.leave()
		work()
	}()
	return nil
}

// Wait blocks until every unit started by Go has returned.
func (l *ConcurrencyLimiter) Wait() {
	l.wg.Wait()
}

// Active returns the number of units currently running work.
func (l *ConcurrencyLimiter) Active() int {
	return int(l.active.Load())
}

// Peak returns the highest Active value observed.
func (l *ConcurrencyLimiter) Peak() int {
	return int(l.peak.Load())
}

// Slots returns the configured concurrency bound.
func (l *ConcurrencyLimiter) Slots() int {
	return int(l.slots)
}

func (l *ConcurrencyLimiter) enter() {
	n := l.active.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.IncInFlight()
}

func (l *ConcurrencyLimiter) leave() {
	l.active.Add(-1)
	metrics.DecInFlight()
}
