package crawler

import (
	"context"
	"net/http"
)

// contextTransport wraps the default transport so an in-flight request
// observes crawl cancellation even though colly owns the request object.
type contextTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

// RoundTrip implements http.RoundTripper with context cancellation support
func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.ctx.Done():
		return nil, t.ctx.Err()
	default:
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req.WithContext(t.ctx))
}
