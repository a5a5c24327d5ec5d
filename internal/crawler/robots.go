package crawler

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"
)

// hostRobots caches the parsed robots.txt for one host for the duration of a
// crawl.
type hostRobots struct {
	once    sync.Once
	data    *robotstxt.RobotsData
	failed  bool
	fetched time.Time
}

// RobotsPolicy fetches and evaluates /robots.txt per host. A fetch failure is
// treated as allow-all with no delay, but the host is recorded so the snapshot
// summary stays auditable. When disabled, every URL is allowed and that too is
// echoed into the summary.
type RobotsPolicy struct {
	enabled   bool
	userAgent string
	client    *http.Client
	logger    arbor.ILogger

	mu       sync.Mutex
	hosts    map[string]*hostRobots
	failures []string
}

// NewRobotsPolicy builds a robots policy for one crawl.
func NewRobotsPolicy(enabled bool, userAgent string, timeout time.Duration, logger arbor.ILogger) *RobotsPolicy {
	return &RobotsPolicy{
		enabled:   enabled,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		hosts:     make(map[string]*hostRobots),
	}
}

// Enabled reports whether robots enforcement is on.
func (r *RobotsPolicy) Enabled() bool {
	return r.enabled
}

// Allowed reports whether the policy permits fetching the URL.
func (r *RobotsPolicy) Allowed(rawURL string) bool {
	if !r.enabled {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	hr := r.hostEntry(u)
	if hr.failed || hr.data == nil {
		return true
	}
	group := hr.data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

// CrawlDelay returns the robots-declared delay for the host, 0 by default.
func (r *RobotsPolicy) CrawlDelay(host, scheme string) time.Duration {
	if !r.enabled {
		return 0
	}
	u := &url.URL{Scheme: scheme, Host: host}
	hr := r.hostEntry(u)
	if hr.failed || hr.data == nil {
		return 0
	}
	group := hr.data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// Failures returns the hosts whose robots.txt could not be fetched.
func (r *RobotsPolicy) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// hostEntry returns the cached record for the URL's host, fetching
// /robots.txt exactly once per host.
func (r *RobotsPolicy) hostEntry(u *url.URL) *hostRobots {
	r.mu.Lock()
	hr, ok := r.hosts[u.Host]
	if !ok {
		hr = &hostRobots{}
		r.hosts[u.Host] = hr
	}
	r.mu.Unlock()

	hr.once.Do(func() {
		robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
		resp, err := r.client.Get(robotsURL)
		if err != nil {
			hr.failed = true
			r.recordFailure(u.Host, err.Error())
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			hr.failed = true
			r.recordFailure(u.Host, err.Error())
			return
		}
		data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
		if err != nil {
			hr.failed = true
			r.recordFailure(u.Host, err.Error())
			return
		}
		hr.data = data
		hr.fetched = time.Now()
	})
	return hr
}

func (r *RobotsPolicy) recordFailure(host, reason string) {
	r.logger.Warn().Str("host", host).Str("reason", reason).Msg("robots.txt fetch failed, allowing all")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, host)
}
