// Package shutdown provides the cooperative cancellation token observed by the
// crawl loops, the retrying fetcher, and every pacing or backoff wait.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Signal is a one-shot cancellation flag. It is safe for concurrent use.
// Triggering it never aborts in-flight requests; callers check Requested at
// loop heads and use Sleep for any artificial delay.
type Signal struct {
	once   sync.Once
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns an untriggered Signal.
func New() *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Trigger sets the flag. It reports true only for the call that flipped it.
func (s *Signal) Trigger() bool {
	fired := false
	s.once.Do(func() {
		fired = true
		close(s.done)
		s.cancel()
	})
	return fired
}

// Requested reports whether the flag has been set.
func (s *Signal) Requested() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed once the flag is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Context returns a context canceled when the flag is set. It is meant for
// blocking acquisitions (slots, tokens), not for HTTP requests.
func (s *Signal) Context() context.Context {
	return s.ctx
}

// Sleep waits for d or until the flag is set. It returns false when the wait
// was cut short (or the flag was already set), true when the full delay elapsed.
func (s *Signal) Sleep(d time.Duration) bool {
	if s.Requested() {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.done:
		return false
	case <-timer.C:
		return true
	}
}

// Watch triggers the signal when ctx is done. It returns immediately.
func (s *Signal) Watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Trigger()
		case <-s.done:
		}
	}()
}

// ListenOS triggers the signal on SIGINT or SIGTERM. Only the first signal has
// an effect; later ones are logged and otherwise ignored. The returned stop
// function releases the OS notification.
func (s *Signal) ListenOS(logger *zap.Logger) (stop func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if s.Trigger() {
					logger.Info("shutdown requested, saving progress", zap.String("signal", sig.String()))
					continue
				}
				logger.Info("shutdown already in progress", zap.String("signal", sig.String()))
			case <-quit:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
