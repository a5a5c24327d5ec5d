// Package interfaces holds the narrow contracts shared across services so
// that consumers can be tested against hand-written mocks.
package interfaces

import (
	"context"
	"time"

	"github.com/sitewarden/sitewarden/internal/models"
)

// FetchOptions controls a single fetch.
type FetchOptions struct {
	Timeout   time.Duration
	RenderJS  bool
	UserAgent string
}

// FetchResult is everything the fetcher learned about one URL.
type FetchResult struct {
	FinalURL        string
	HTTPStatus      int
	ResponseHeaders map[string][]string
	Title           string
	ContentRaw      string
	ContentCleaned  string
	ContentMarkdown string
	Links           []string // Absolute <a href> targets, unfiltered
	Rendered        bool
}

// Fetcher retrieves a single URL. Implementations are stateless and safe to
// call from any worker.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*FetchResult, error)
}

// EventType tags a progress event.
type EventType string

const (
	EventCrawlStarted  EventType = "crawl.started"
	EventPageCrawled   EventType = "crawl.page"
	EventCrawlWarning  EventType = "crawl.warning"
	EventCrawlFinished EventType = "crawl.finished"
	EventTestStarted   EventType = "test.started"
	EventTestFinished  EventType = "test.finished"
	EventIssuesUpdated EventType = "issues.updated"
)

// Event is one progress notification emitted by the orchestrator or the test
// runner and fanned out to subscribers (console, websocket, notifiers).
type Event struct {
	Type    EventType              `json:"type"`
	Project string                 `json:"project"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	At      time.Time              `json:"at"`
}

// EventPublisher fans events out to subscribers. Publish never blocks the
// caller on a slow subscriber.
type EventPublisher interface {
	Publish(event Event)
}

// Notifier delivers a run summary to one backend (console, webhook, email).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, project string, results []*models.TestResult, opened, resolved []*models.Issue) error
}
