package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/interfaces"
)

// FetchErrorKind classifies a fetch failure for the snapshot summary.
type FetchErrorKind string

const (
	FetchErrNetwork FetchErrorKind = "network"
	FetchErrTimeout FetchErrorKind = "timeout"
	FetchErrHTTP    FetchErrorKind = "http_error"
	FetchErrRender  FetchErrorKind = "render_error"
)

// FetchError carries the failure classification alongside the cause.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves single URLs through colly, optionally routing through the
// headless render pool when a JS-rendered DOM is requested. The fetcher holds
// no per-request state and is safe to call from any worker.
type Fetcher struct {
	cfg       common.CrawlerConfig
	processor *ContentProcessor
	renderer  *RenderPool // nil when rendering is disabled
	logger    arbor.ILogger
}

// NewFetcher creates a fetcher. renderer may be nil; requests asking for JS
// rendering then fall back to the plain HTTP path.
func NewFetcher(cfg common.CrawlerConfig, renderer *RenderPool, logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		processor: NewContentProcessor(logger),
		renderer:  renderer,
		logger:    logger,
	}
}

// Fetch retrieves one URL. Non-2xx responses are not errors at this level:
// the result records the status and whatever body came back, and the caller
// decides what to keep. Every other failure is classified via FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts interfaces.FetchOptions) (*interfaces.FetchResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var (
		body     []byte
		status   int
		headers  map[string][]string
		finalURL = rawURL
		rendered bool
	)

	if opts.RenderJS && f.renderer != nil {
		html, err := f.renderer.Render(ctx, rawURL, timeout)
		if err != nil {
			return nil, &FetchError{Kind: FetchErrRender, URL: rawURL, Err: err}
		}
		body = []byte(html)
		status = 200
		headers = map[string][]string{}
		rendered = true
	} else {
		var fetchErr error
		body, status, headers, finalURL, fetchErr = f.httpFetch(ctx, rawURL, opts, timeout)
		if fetchErr != nil {
			return nil, fetchErr
		}
	}

	result := &interfaces.FetchResult{
		FinalURL:        finalURL,
		HTTPStatus:      status,
		ResponseHeaders: headers,
		ContentRaw:      string(body),
		Rendered:        rendered,
	}

	cleaned, err := f.processor.Clean(result.ContentRaw)
	if err != nil {
		// Unparseable bodies (binary, truncated) still count as fetched; the
		// projections stay empty.
		f.logger.Debug().Err(err).Str("url", rawURL).Msg("HTML cleaning failed")
		return result, nil
	}
	result.ContentCleaned = cleaned

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleaned))
	if err == nil {
		result.Title = f.processor.ExtractTitle(doc)
		result.Links = f.processor.ExtractLinks(doc, finalURL)
	}

	markdown, err := f.processor.Markdown(cleaned, finalURL)
	if err != nil {
		f.logger.Debug().Err(err).Str("url", rawURL).Msg("Markdown projection failed")
	} else {
		result.ContentMarkdown = markdown
	}

	return result, nil
}

// httpFetch performs the plain HTTP path through a per-request colly
// collector clone. Collector state never leaks between requests.
func (f *Fetcher) httpFetch(ctx context.Context, rawURL string, opts interfaces.FetchOptions, timeout time.Duration) (body []byte, status int, headers map[string][]string, finalURL string, fetchErr error) {
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = f.cfg.UserAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.IgnoreRobotsTxt(), // Robots policy is evaluated by the orchestrator
	)
	c.SetRequestTimeout(timeout)
	c.WithTransport(&contextTransport{ctx: ctx})
	if f.cfg.UserAgentRotation && opts.UserAgent == "" {
		extensions.RandomUserAgent(c)
	}

	finalURL = rawURL
	var transportErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
		headers = *r.Headers
		finalURL = r.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// Non-2xx: keep the response, classify as http_error at the call
			// site via the recorded status.
			body = r.Body
			status = r.StatusCode
			if r.Headers != nil {
				headers = *r.Headers
			}
			finalURL = r.Request.URL.String()
			return
		}
		transportErr = err
	})

	if err := c.Visit(rawURL); err != nil && transportErr == nil && status == 0 {
		transportErr = err
	}
	c.Wait()

	if status == 0 {
		if transportErr == nil {
			transportErr = errors.New("no response")
		}
		return nil, 0, nil, rawURL, &FetchError{Kind: classifyTransportError(ctx, transportErr), URL: rawURL, Err: transportErr}
	}
	if headers == nil {
		headers = map[string][]string{}
	}
	return body, status, headers, finalURL, nil
}

// classifyTransportError separates timeouts from other network failures.
func classifyTransportError(ctx context.Context, err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FetchErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchErrTimeout
	}
	return FetchErrNetwork
}
