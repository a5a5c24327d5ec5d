package crawler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxBackoff = 60 * time.Second

// hostState tracks politeness for one host: a token-bucket limiter for the
// crawl delay plus exponential back-off driven by 429s and sustained 5xx.
type hostState struct {
	limiter      *rate.Limiter
	mu           sync.Mutex
	backoff      time.Duration
	backoffUntil time.Time
	recent5xx    int
}

// HostLimiter enforces per-host dispatch pacing. Concurrency caps live in the
// frontier; the limiter owns delay and back-off.
type HostLimiter struct {
	defaultDelay time.Duration
	mu           sync.Mutex
	hosts        map[string]*hostState
}

// NewHostLimiter creates a limiter with the given default inter-request
// delay. Robots crawl-delay overrides per host via SetDelay.
func NewHostLimiter(defaultDelay time.Duration) *HostLimiter {
	return &HostLimiter{
		defaultDelay: defaultDelay,
		hosts:        make(map[string]*hostState),
	}
}

func (l *HostLimiter) host(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()
	hs, ok := l.hosts[host]
	if !ok {
		hs = &hostState{limiter: newDelayLimiter(l.defaultDelay)}
		l.hosts[host] = hs
	}
	return hs
}

func newDelayLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// SetDelay installs a host-specific delay (robots crawl-delay). A zero delay
// keeps the default.
func (l *HostLimiter) SetDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	hs := l.host(host)
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.limiter = newDelayLimiter(delay)
}

// Wait blocks until the host may be dispatched to: first any back-off window,
// then the crawl-delay token.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	hs := l.host(host)

	hs.mu.Lock()
	until := hs.backoffUntil
	hs.mu.Unlock()

	if wait := time.Until(until); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return hs.limiter.Wait(ctx)
}

// ReportStatus feeds a response code back into the back-off state. A 429
// always backs off; 5xx backs off after three in a row. Any success resets.
func (l *HostLimiter) ReportStatus(host string, status int) {
	hs := l.host(host)
	hs.mu.Lock()
	defer hs.mu.Unlock()

	switch {
	case status == http.StatusTooManyRequests:
		hs.recent5xx = 0
		hs.escalate()
	case status >= 500:
		hs.recent5xx++
		if hs.recent5xx >= 3 {
			hs.escalate()
		}
	case status > 0:
		hs.recent5xx = 0
		hs.backoff = 0
		hs.backoffUntil = time.Time{}
	}
}

// escalate doubles the back-off window up to the cap. Caller holds hs.mu.
func (hs *hostState) escalate() {
	if hs.backoff == 0 {
		hs.backoff = time.Second
	} else {
		hs.backoff *= 2
		if hs.backoff > maxBackoff {
			hs.backoff = maxBackoff
		}
	}
	hs.backoffUntil = time.Now().Add(hs.backoff)
}

// BackoffActive reports whether the host currently sits in a back-off window.
func (l *HostLimiter) BackoffActive(host string) bool {
	hs := l.host(host)
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return time.Now().Before(hs.backoffUntil)
}
