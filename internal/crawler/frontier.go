package crawler

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/sitewarden/sitewarden/internal/models"
)

// FrontierItem is one admitted URL waiting to be crawled.
type FrontierItem struct {
	URL   string // Normalised form
	Host  string
	Depth int

	seq        int64
	enqueuedAt time.Time
}

// FrontierConfig bounds what the frontier will admit.
type FrontierConfig struct {
	RootURL            string // Normalised root; defines the crawl scope
	IncludeSubdomains  bool
	MaxDepth           int // -1 = unbounded
	MaxPages           int // Admission ceiling; 0 admits nothing
	PerHostConcurrency int
	Ceiling            int // Queued-set size above which Submit drops new URLs
	IncludePatterns    []string
	ExcludePatterns    []string
	TrackingParams     []string
}

// Frontier is the bounded, deduplicated, host-partitioned URL queue. A single
// mutex serialises every mutation, which makes admission order deterministic
// for identical inputs even though fetches run in parallel.
type Frontier struct {
	cfg      FrontierConfig
	rootHost string
	include  []glob.Glob
	exclude  []glob.Glob

	mu   sync.Mutex
	cond *sync.Cond

	queues   map[string][]*FrontierItem // Per-host FIFO
	inflight map[string]int             // Per-host dequeued-but-not-done
	seen     map[string]bool
	entries  []*models.SitemapEntry          // First-seen order, for sitemap.json
	entryIdx map[string]*models.SitemapEntry // By normalised URL

	seq          int64
	queued       int
	pending      int // queued + inflight; 0 after start means exhaustion
	admitted     int
	closed       bool
	limitReached bool
	ceilingHit   bool
	started      bool
}

// NewFrontier builds a frontier for one crawl. Include/exclude patterns are
// path globs; a bad pattern is a configuration error.
func NewFrontier(cfg FrontierConfig) (*Frontier, error) {
	rootURL, err := url.Parse(cfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("frontier root url: %w", err)
	}
	if cfg.PerHostConcurrency <= 0 {
		cfg.PerHostConcurrency = 1
	}

	f := &Frontier{
		cfg:      cfg,
		rootHost: rootURL.Host,
		queues:   make(map[string][]*FrontierItem),
		inflight: make(map[string]int),
		seen:     make(map[string]bool),
		entryIdx: make(map[string]*models.SitemapEntry),
	}
	f.cond = sync.NewCond(&f.mu)

	for _, p := range cfg.IncludePatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
		f.include = append(f.include, g)
	}
	for _, p := range cfg.ExcludePatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, g)
	}

	if cfg.MaxPages == 0 {
		f.closed = true
	}
	return f, nil
}

// Submit offers a URL at the given depth. It normalises, deduplicates, and
// applies the admission filters; rejection is not an error. When the queue
// sits at the configured ceiling the URL is dropped rather than queued:
// callers are the crawl workers themselves, so blocking here would leave no
// one free to drain the queue. A dropped URL is not remembered and may be
// admitted if rediscovered after the queue drains.
func (f *Frontier) Submit(rawURL string, depth int) (bool, error) {
	normalized, err := Normalize(rawURL, f.cfg.TrackingParams)
	if err != nil {
		return false, err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, nil
	}
	if f.seen[normalized] {
		return false, nil
	}
	if !f.admissible(u, depth) {
		// Remember off-scope duplicates so they are not re-evaluated, but do
		// not record them in the sitemap.
		f.seen[normalized] = true
		return false, nil
	}

	if f.cfg.Ceiling > 0 && f.queued >= f.cfg.Ceiling {
		f.ceilingHit = true
		return false, nil
	}

	f.seen[normalized] = true
	f.seq++
	item := &FrontierItem{
		URL:        normalized,
		Host:       u.Host,
		Depth:      depth,
		seq:        f.seq,
		enqueuedAt: time.Now(),
	}
	f.queues[u.Host] = append(f.queues[u.Host], item)
	f.queued++
	f.pending++
	f.started = true

	entry := &models.SitemapEntry{URL: normalized, Depth: depth}
	f.entries = append(f.entries, entry)
	f.entryIdx[normalized] = entry

	f.cond.Broadcast()
	return true, nil
}

// admissible applies scope, depth, and path-glob filters. Caller holds the
// lock.
func (f *Frontier) admissible(u *url.URL, depth int) bool {
	if !SameSite(f.rootHost, u.Host, f.cfg.IncludeSubdomains) {
		return false
	}
	if f.cfg.MaxDepth >= 0 && depth > f.cfg.MaxDepth {
		return false
	}
	for _, g := range f.exclude {
		if g.Match(u.Path) {
			return false
		}
	}
	if len(f.include) > 0 {
		matched := false
		for _, g := range f.include {
			if g.Match(u.Path) {
				matched = true
				break
			}
		}
		// The root itself is always admissible so the crawl can start.
		if !matched && u.String() != f.cfg.RootURL {
			return false
		}
	}
	return true
}

// Next blocks until a URL is eligible for dispatch and returns it, or returns
// ok=false once the frontier is closed and drained. Host selection prefers
// the host with the fewest in-flight requests, breaking ties by earliest
// enqueue; within a host the order is FIFO.
func (f *Frontier) Next() (*FrontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed && f.queued == 0 {
			return nil, false
		}
		if item := f.pick(); item != nil {
			f.queued--
			f.inflight[item.Host]++
			f.admitted++
			if f.cfg.MaxPages > 0 && f.admitted >= f.cfg.MaxPages {
				f.limitReached = true
				f.closeLocked()
			}
			f.cond.Broadcast()
			return item, true
		}
		f.cond.Wait()
	}
}

// pick chooses the next item under the per-host concurrency cap. Caller holds
// the lock. Returns nil when no host is currently eligible.
func (f *Frontier) pick() *FrontierItem {
	var bestHost string
	bestInflight := -1
	var bestSeq int64
	for host, q := range f.queues {
		if len(q) == 0 {
			continue
		}
		if f.inflight[host] >= f.cfg.PerHostConcurrency {
			continue
		}
		head := q[0]
		if bestInflight == -1 ||
			f.inflight[host] < bestInflight ||
			(f.inflight[host] == bestInflight && head.seq < bestSeq) {
			bestHost = host
			bestInflight = f.inflight[host]
			bestSeq = head.seq
		}
	}
	if bestInflight == -1 {
		return nil
	}
	q := f.queues[bestHost]
	item := q[0]
	f.queues[bestHost] = q[1:]
	return item
}

// Done marks a dequeued item finished. When the last pending item completes
// the frontier closes itself, which is the natural-exhaustion termination.
func (f *Frontier) Done(item *FrontierItem) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inflight[item.Host]--
	f.pending--
	if f.pending == 0 && f.started {
		f.closeLocked()
	}
	f.cond.Broadcast()
}

// Close shuts the frontier; queued items are discarded and blocked callers
// return.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	f.cond.Broadcast()
}

func (f *Frontier) closeLocked() {
	if f.closed {
		return
	}
	f.closed = true
	// Drop queued work so Next drains immediately.
	for host := range f.queues {
		f.queued -= len(f.queues[host])
		f.queues[host] = nil
	}
	if f.queued < 0 {
		f.queued = 0
	}
}

// MarkCrawled records the fetch outcome for the sitemap.
func (f *Frontier) MarkCrawled(normalizedURL string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entryIdx[normalizedURL]; ok {
		e.Crawled = true
		e.Status = status
	}
}

// Entries returns the sitemap entries in first-seen order.
func (f *Frontier) Entries() []models.SitemapEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SitemapEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, *e)
	}
	return out
}

// LimitReached reports whether the admission ceiling closed the frontier.
func (f *Frontier) LimitReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limitReached
}

// CeilingHit reports whether the queue bound ever dropped a discovered URL.
func (f *Frontier) CeilingHit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ceilingHit
}
