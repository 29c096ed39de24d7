// Package collyfetcher implements crawler.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	AcceptLanguage     string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Waiter gates each request, typically a per-host rate limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher performs one GET per call. Retries belong to crawler.RetryingFetcher.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects the outcome reported by collector callbacks.
type fetchState struct {
	page   crawler.Page
	status int
	err    error
}

var _ crawler.PageFetcher = (*Fetcher)(nil)

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// Retries revisit the same URL, so the visited set must not block them.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))
	c.SetRequestTimeout(cfg.Timeout)
	c.IgnoreRobotsTxt = true

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
	}
}

// Fetch executes a single HTTP GET. Failures are returned as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return crawler.Page{}, classify(url, 0, err)
		}
	}

	state := &fetchState{}
	collector := f.buildCollector(state)
	if status, err := f.runCollector(ctx, collector, url, state); err != nil {
		return crawler.Page{}, classify(url, status, err)
	}
	if state.page.StatusCode != http.StatusOK {
		return crawler.Page{}, &crawler.FetchError{
			URL:        url,
			Kind:       crawler.FailureHTTPStatus,
			StatusCode: state.page.StatusCode,
		}
	}
	return state.page, nil
}

func (f *Fetcher) buildCollector(state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	f.configureCollectorHooks(collector, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.page = crawler.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

// runCollector visits url and returns the failing status code, if any. state
// belongs to the Visit goroutine until done fires, so a canceled fetch reports
// status 0 and leaves state untouched.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) (int, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if state.err != nil {
			return state.status, fmt.Errorf("colly response failed: %w", state.err)
		}
		if err != nil {
			return state.status, fmt.Errorf("colly visit failed: %w", err)
		}
		return 0, nil
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if f.cfg.AcceptLanguage != "" {
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
}

// classify maps a transport or status failure onto a crawler.FailureKind.
func classify(url string, status int, err error) *crawler.FetchError {
	fe := &crawler.FetchError{URL: url, StatusCode: status, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		fe.Kind = crawler.FailureCanceled
	case status == http.StatusTooManyRequests:
		fe.Kind = crawler.FailureRateLimited
	case status != 0:
		fe.Kind = crawler.FailureHTTPStatus
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = crawler.FailureTimeout
	default:
		fe.Kind = crawler.FailureNetwork
	}
	return fe
}

func newHTTPTransport(insecure bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for hosts with broken chains
	}
	return t
}
