package crawler

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRobotsPolicyDisallow(t *testing.T) {
	var robotsFetches atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsFetches.Add(1)
			w.Write([]byte("User-agent: *\nDisallow: /private/\nCrawl-delay: 2\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	p := NewRobotsPolicy(true, "sitewarden", 5*time.Second, arbor.NewLogger())

	assert.True(t, p.Allowed(ts.URL+"/public/page"))
	assert.False(t, p.Allowed(ts.URL+"/private/secret"))
	assert.True(t, p.Allowed(ts.URL+"/"))

	host := ts.Listener.Addr().String()
	assert.Equal(t, 2*time.Second, p.CrawlDelay(host, "http"))

	// robots.txt is fetched once per host, not per URL.
	assert.Equal(t, int32(1), robotsFetches.Load())
	assert.Empty(t, p.Failures())
}

func TestRobotsPolicyFetchFailureAllowsAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := ts.Listener.Addr().String()
	ts.Close() // Connection refused from here on

	p := NewRobotsPolicy(true, "sitewarden", time.Second, arbor.NewLogger())

	assert.True(t, p.Allowed("http://"+host+"/anything"))
	assert.Equal(t, time.Duration(0), p.CrawlDelay(host, "http"))

	failures := p.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, host, failures[0])
}

func TestRobotsPolicyDisabled(t *testing.T) {
	p := NewRobotsPolicy(false, "sitewarden", time.Second, arbor.NewLogger())
	assert.False(t, p.Enabled())
	assert.True(t, p.Allowed("http://unreachable.invalid/private"))
	assert.Equal(t, time.Duration(0), p.CrawlDelay("unreachable.invalid", "http"))
}

func TestRobotsPolicy404AllowsAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	p := NewRobotsPolicy(true, "sitewarden", time.Second, arbor.NewLogger())
	assert.True(t, p.Allowed(ts.URL+"/private/page"))
	assert.Empty(t, p.Failures(), "a 404 robots.txt is an answer, not a failure")
}
