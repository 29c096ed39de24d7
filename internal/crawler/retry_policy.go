package crawler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
	"github.com/JakeFAU/listing-crawler/internal/shutdown"
)

// RetryPolicy decides how many attempts a URL gets and how long to wait
// between them.
type RetryPolicy struct {
	MaxAttempts       int
	TimeoutWait       time.Duration
	ErrorWait         time.Duration
	RateLimitBaseWait time.Duration
}

// DefaultRetryPolicy mirrors the pacing the target site tolerates.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		TimeoutWait:       5 * time.Second,
		ErrorWait:         3 * time.Second,
		RateLimitBaseWait: 10 * time.Second,
	}
}

// Backoff returns the wait before the attempt following a failure of kind on
// the given 1-based attempt. Rate-limit waits grow linearly with attempt.
func (p RetryPolicy) Backoff(kind FailureKind, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch kind {
	case FailureRateLimited:
		return p.RateLimitBaseWait * time.Duration(attempt)
	case FailureTimeout:
		return p.TimeoutWait
	default:
		return p.ErrorWait
	}
}

// RetryingFetcher wraps a PageFetcher with bounded retries and cooperative
// cancellation. It never panics on fetch failures; every outcome is either a
// Page or a *FetchError.
type RetryingFetcher struct {
	base   PageFetcher
	policy RetryPolicy
	signal *shutdown.Signal
	logger *zap.Logger
}

// NewRetryingFetcher builds a RetryingFetcher. A nil signal never fires.
func NewRetryingFetcher(base PageFetcher, policy RetryPolicy, signal *shutdown.Signal, logger *zap.Logger) *RetryingFetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if signal == nil {
		signal = shutdown.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		base:   base,
		policy: policy,
		signal: signal,
		logger: logger,
	}
}

// Fetch tries url up to MaxAttempts times. Shutdown is checked before every
// attempt and interrupts every wait; in that case the result is a canceled
// FetchError and no further attempts are made.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var last *FetchError
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if f.signal.Requested() {
			return Page{}, canceledFetch(url, attempt-1)
		}
		page, err := f.base.Fetch(ctx, url)
		metrics.ObserveFetchAttempt(outcomeOf(err))
		if err == nil {
			return page, nil
		}

		last = asFetchError(url, err)
		if last.Kind == FailureCanceled {
			return Page{}, canceledFetch(url, attempt)
		}
		if attempt == f.policy.MaxAttempts {
			f.logger.Warn("fetch failed, attempts exhausted",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.String("kind", string(last.Kind)),
				zap.Error(err),
			)
			break
		}

		wait := f.policy.Backoff(last.Kind, attempt)
		switch last.Kind {
		case FailureRateLimited:
			metrics.ObserveRateLimitHit()
			f.logger.Info("rate limited, backing off", zap.String("url", url), zap.Duration("wait", wait))
		case FailureTimeout:
			f.logger.Info("timeout, retrying", zap.String("url", url), zap.Int("attempt", attempt))
		default:
			f.logger.Info("fetch attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("status_code", last.StatusCode),
				zap.String("kind", string(last.Kind)),
			)
		}
		if !f.signal.Sleep(wait) {
			return Page{}, canceledFetch(url, attempt)
		}
	}
	last.Attempts = f.policy.MaxAttempts
	return Page{}, last
}

func asFetchError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		cp := *fe
		if cp.URL == "" {
			cp.URL = url
		}
		return &cp
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrShutdown) {
		return &FetchError{URL: url, Kind: FailureCanceled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{URL: url, Kind: FailureTimeout, Err: err}
	}
	return &FetchError{URL: url, Kind: FailureNetwork, Err: err}
}

func canceledFetch(url string, attempts int) *FetchError {
	return &FetchError{URL: url, Kind: FailureCanceled, Attempts: attempts, Err: ErrShutdown}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if kind := FailureKindOf(err); kind != "" {
		return string(kind)
	}
	return string(FailureNetwork)
}
