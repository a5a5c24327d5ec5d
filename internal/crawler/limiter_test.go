package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter429Backoff(t *testing.T) {
	l := NewHostLimiter(0)

	assert.False(t, l.BackoffActive("example.com"))
	l.ReportStatus("example.com", 429)
	assert.True(t, l.BackoffActive("example.com"))

	// Other hosts are unaffected.
	assert.False(t, l.BackoffActive("other.com"))
}

func TestHostLimiter5xxThreshold(t *testing.T) {
	l := NewHostLimiter(0)

	l.ReportStatus("example.com", 500)
	l.ReportStatus("example.com", 502)
	assert.False(t, l.BackoffActive("example.com"), "two 5xx must not trigger back-off")

	l.ReportStatus("example.com", 503)
	assert.True(t, l.BackoffActive("example.com"), "third consecutive 5xx triggers back-off")
}

func TestHostLimiterSuccessResets(t *testing.T) {
	l := NewHostLimiter(0)

	l.ReportStatus("example.com", 500)
	l.ReportStatus("example.com", 500)
	l.ReportStatus("example.com", 200)
	l.ReportStatus("example.com", 500)
	l.ReportStatus("example.com", 500)
	assert.False(t, l.BackoffActive("example.com"), "success must reset the 5xx streak")

	l.ReportStatus("example.com", 429)
	require.True(t, l.BackoffActive("example.com"))
	l.ReportStatus("example.com", 200)
	assert.False(t, l.BackoffActive("example.com"), "success must clear an active back-off")
}

func TestHostLimiterWaitHonoursBackoff(t *testing.T) {
	l := NewHostLimiter(0)
	l.ReportStatus("example.com", 429)

	start := time.Now()
	err := l.Wait(context.Background(), "example.com")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond, "first back-off window is one second")
}

func TestHostLimiterWaitCancellable(t *testing.T) {
	l := NewHostLimiter(0)
	l.ReportStatus("example.com", 429)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "example.com")
	require.Error(t, err)
}

func TestHostLimiterCrawlDelay(t *testing.T) {
	l := NewHostLimiter(0)
	l.SetDelay("example.com", 100*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "example.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "second dispatch waits out the crawl delay")
}
