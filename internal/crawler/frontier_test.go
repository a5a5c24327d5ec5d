package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper - frontier with sensible single-host defaults
func newTestFrontier(t *testing.T, cfg FrontierConfig) *Frontier {
	t.Helper()
	if cfg.RootURL == "" {
		cfg.RootURL = "https://example.com/"
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 100
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = -1
	}
	if cfg.PerHostConcurrency == 0 {
		cfg.PerHostConcurrency = 4
	}
	f, err := NewFrontier(cfg)
	require.NoError(t, err)
	return f
}

func TestFrontierDeduplicates(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{})

	ok, err := f.Submit("https://example.com/a", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same URL in a different surface form.
	ok, err = f.Submit("https://EXAMPLE.com/a#frag", 0)
	require.NoError(t, err)
	assert.False(t, ok, "normalised duplicate must be rejected")
}

func TestFrontierScopeAndDepth(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{MaxDepth: 2})

	tests := []struct {
		name  string
		url   string
		depth int
		want  bool
	}{
		{name: "in scope", url: "https://example.com/x", depth: 1, want: true},
		{name: "off site", url: "https://other.com/x", depth: 1, want: false},
		{name: "subdomain off by default", url: "https://blog.example.com/x", depth: 1, want: false},
		{name: "at depth limit", url: "https://example.com/d2", depth: 2, want: true},
		{name: "beyond depth limit", url: "https://example.com/d3", depth: 3, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.Submit(tt.url, tt.depth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFrontierPathGlobs(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{
		RootURL:         "https://example.com/",
		IncludePatterns: []string{"/docs/**"},
		ExcludePatterns: []string{"/docs/private/**"},
	})

	// The root is always admissible even when it misses the include globs.
	ok, err := f.Submit("https://example.com/", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Submit("https://example.com/docs/guide/start", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Submit("https://example.com/blog/post", 1)
	require.NoError(t, err)
	assert.False(t, ok, "path outside include globs")

	ok, err = f.Submit("https://example.com/docs/private/key", 1)
	require.NoError(t, err)
	assert.False(t, ok, "exclude wins over include")
}

func TestFrontierBadGlobRejected(t *testing.T) {
	_, err := NewFrontier(FrontierConfig{
		RootURL:         "https://example.com/",
		MaxPages:        10,
		IncludePatterns: []string{"[unclosed"},
	})
	require.Error(t, err)
}

func TestFrontierMaxPagesClosesAdmission(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{MaxPages: 2})

	for _, u := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		_, err := f.Submit(u, 0)
		require.NoError(t, err)
	}

	item1, ok := f.Next()
	require.True(t, ok)
	item2, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", item1.URL)
	assert.Equal(t, "https://example.com/b", item2.URL)

	// Dispatching the second item reached max_pages: queued work is dropped
	// and further submissions are ignored.
	assert.True(t, f.LimitReached())
	ok, err := f.Submit("https://example.com/d", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	f.Done(item1)
	f.Done(item2)
	_, ok = f.Next()
	assert.False(t, ok, "frontier must drain after the limit")
}

func TestFrontierMaxPagesZeroStartsClosed(t *testing.T) {
	f, err := NewFrontier(FrontierConfig{RootURL: "https://example.com/", MaxPages: 0, MaxDepth: -1})
	require.NoError(t, err)

	ok, err := f.Submit("https://example.com/", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok = f.Next()
	assert.False(t, ok)
}

func TestFrontierFIFOWithinHost(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{PerHostConcurrency: 1})

	urls := []string{
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
	}
	for _, u := range urls {
		ok, err := f.Submit(u, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, want := range urls {
		item, ok := f.Next()
		require.True(t, ok)
		assert.Equal(t, want, item.URL)
		f.Done(item)
	}
}

func TestFrontierPerHostConcurrencyCap(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{
		RootURL:            "https://example.com/",
		IncludeSubdomains:  true,
		PerHostConcurrency: 1,
	})

	for _, u := range []string{"https://example.com/a", "https://example.com/b", "https://sub.example.com/c"} {
		ok, err := f.Submit(u, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	first, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "example.com", first.Host)

	// example.com is saturated, so the next dispatch must come from the
	// subdomain even though /b was enqueued earlier.
	second, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "sub.example.com", second.Host)

	f.Done(first)
	third, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", third.URL)
}

func TestFrontierNaturalExhaustion(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{})

	ok, err := f.Submit("https://example.com/", 0)
	require.NoError(t, err)
	require.True(t, ok)

	item, ok := f.Next()
	require.True(t, ok)
	f.Done(item)

	done := make(chan struct{})
	go func() {
		_, ok := f.Next()
		assert.False(t, ok)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after the frontier drained")
	}
	assert.False(t, f.LimitReached())
}

func TestFrontierCeilingDropsWhenFull(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{Ceiling: 2})

	for _, u := range []string{"https://example.com/a", "https://example.com/b"} {
		ok, err := f.Submit(u, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// At the ceiling a new URL is dropped, never queued: the submitters are
	// the crawl workers themselves, so a blocking Submit would leave no one
	// free to drain the queue.
	ok, err := f.Submit("https://example.com/c", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, f.CeilingHit())

	// Dequeuing makes room, and the dropped URL is admissible on rediscovery.
	item, ok := f.Next()
	require.True(t, ok)
	ok, err = f.Submit("https://example.com/c", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	f.Done(item)
}

func TestFrontierEntriesFirstSeenOrder(t *testing.T) {
	f := newTestFrontier(t, FrontierConfig{})

	urls := []string{"https://example.com/", "https://example.com/x", "https://example.com/y"}
	for i, u := range urls {
		ok, err := f.Submit(u, i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	f.MarkCrawled("https://example.com/x", 200)

	entries := f.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, urls[i], e.URL)
	}
	assert.True(t, entries[1].Crawled)
	assert.Equal(t, 200, entries[1].Status)
	assert.False(t, entries[0].Crawled)
}
