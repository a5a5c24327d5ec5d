// -----------------------------------------------------------------------
// Crawl orchestrator - drives frontier, robots, fetcher, and snapshot writer
// -----------------------------------------------------------------------

package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/interfaces"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// CrawlOptions bound one crawl. Zero values fall back to configuration
// defaults via OptionsFromConfig.
type CrawlOptions struct {
	MaxPages           int
	MaxDepth           int // -1 = unbounded
	PerHostConcurrency int
	GlobalConcurrency  int
	PerPageTimeout     time.Duration
	OverallTimeout     time.Duration
	RespectRobots      bool
	IncludeSubdomains  bool
	IncludePatterns    []string
	ExcludePatterns    []string
	RenderJS           bool
	FrontierCeiling    int
	TrackingParams     []string
	UserAgent          string
}

// OptionsFromConfig seeds crawl options from the crawler configuration.
func OptionsFromConfig(cfg common.CrawlerConfig) CrawlOptions {
	return CrawlOptions{
		MaxPages:           cfg.MaxPages,
		MaxDepth:           cfg.MaxDepth,
		PerHostConcurrency: cfg.PerHostConcurrency,
		GlobalConcurrency:  cfg.GlobalConcurrency,
		PerPageTimeout:     cfg.PerPageTimeout,
		OverallTimeout:     cfg.OverallTimeout,
		RespectRobots:      cfg.RespectRobots,
		IncludeSubdomains:  cfg.IncludeSubdomains,
		IncludePatterns:    cfg.IncludePatterns,
		ExcludePatterns:    cfg.ExcludePatterns,
		FrontierCeiling:    cfg.FrontierCeiling,
		TrackingParams:     cfg.TrackingParams,
		UserAgent:          cfg.UserAgent,
	}
}

// Orchestrator drives a crawl: a fixed worker pool pulls from the frontier,
// consults the robots policy, fetches, hands pages to the snapshot writer,
// and feeds eligible outbound links back into the frontier.
type Orchestrator struct {
	fetcher interfaces.Fetcher
	events  interfaces.EventPublisher
	logger  arbor.ILogger
}

// NewOrchestrator creates a crawl orchestrator. events may be nil.
func NewOrchestrator(fetcher interfaces.Fetcher, events interfaces.EventPublisher, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, events: events, logger: logger}
}

// Crawl runs one crawl to completion and seals the snapshot. Individual URL
// failures never abort the crawl; cancellation and timeouts seal the snapshot
// as partial with an explanation.
func (o *Orchestrator) Crawl(ctx context.Context, project *models.Project, writer *workspace.SnapshotWriter, opts CrawlOptions) (*models.Snapshot, error) {
	rootNorm, err := Normalize(project.RootURL, opts.TrackingParams)
	if err != nil {
		return nil, common.UsageError("invalid root url: %v", err)
	}

	if opts.MaxPages > 10000 {
		opts.MaxPages = 10000
	}
	if opts.GlobalConcurrency <= 0 {
		opts.GlobalConcurrency = 10
	}
	if opts.PerPageTimeout <= 0 {
		opts.PerPageTimeout = 60 * time.Second
	}

	frontier, err := NewFrontier(FrontierConfig{
		RootURL:            rootNorm,
		IncludeSubdomains:  opts.IncludeSubdomains,
		MaxDepth:           opts.MaxDepth,
		MaxPages:           opts.MaxPages,
		PerHostConcurrency: opts.PerHostConcurrency,
		Ceiling:            opts.FrontierCeiling,
		IncludePatterns:    opts.IncludePatterns,
		ExcludePatterns:    opts.ExcludePatterns,
		TrackingParams:     opts.TrackingParams,
	})
	if err != nil {
		return nil, common.UsageError("%v", err)
	}

	robots := NewRobotsPolicy(opts.RespectRobots, opts.UserAgent, opts.PerPageTimeout, o.logger)
	limiter := NewHostLimiter(0)

	crawlCtx := ctx
	var cancel context.CancelFunc
	if opts.OverallTimeout > 0 {
		crawlCtx, cancel = context.WithTimeout(ctx, opts.OverallTimeout)
		defer cancel()
	}

	if _, err := frontier.Submit(project.RootURL, 0); err != nil {
		return nil, common.UsageError("root url rejected: %v", err)
	}

	o.publish(interfaces.EventCrawlStarted, project.Slug, fmt.Sprintf("crawl started for %s", rootNorm), nil)

	// Close the frontier on cancellation; in-flight fetches finish on their
	// own per-page budget.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-crawlCtx.Done():
			frontier.Close()
		case <-stopWatch:
		}
	}()

	var (
		wg        sync.WaitGroup
		delayOnce sync.Map
	)
	for i := 0; i < opts.GlobalConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := frontier.Next()
				if !ok {
					return
				}
				o.crawlOne(crawlCtx, project, writer, frontier, robots, limiter, &delayOnce, item, opts)
				frontier.Done(item)
			}
		}()
	}
	wg.Wait()
	close(stopWatch)

	if frontier.CeilingHit() {
		writer.RecordWarning("frontier ceiling reached; discovered links were dropped to bound memory")
	}

	status, reason := o.terminationStatus(crawlCtx, frontier, writer, opts)
	snapshot, err := writer.Seal(status, reason, robots.Enabled(), robots.Failures(), frontier.Entries())
	if err != nil {
		return nil, err
	}

	o.publish(interfaces.EventCrawlFinished, project.Slug,
		fmt.Sprintf("crawl finished: %d pages, %d errors, status=%s",
			snapshot.Summary.Counts.Pages, snapshot.Summary.Counts.Errors, status),
		map[string]interface{}{"snapshot_id": snapshot.ID, "status": string(status)})

	o.logger.Info().
		Str("project", project.Slug).
		Str("snapshot", snapshot.ID).
		Int("pages", snapshot.Summary.Counts.Pages).
		Int("errors", snapshot.Summary.Counts.Errors).
		Str("status", string(status)).
		Msg("Crawl sealed")

	return snapshot, nil
}

// crawlOne processes a single admitted URL.
func (o *Orchestrator) crawlOne(ctx context.Context, project *models.Project, writer *workspace.SnapshotWriter, frontier *Frontier, robots *RobotsPolicy, limiter *HostLimiter, delayOnce *sync.Map, item *FrontierItem, opts CrawlOptions) {
	if !robots.Allowed(item.URL) {
		o.logger.Debug().Str("url", item.URL).Msg("Disallowed by robots.txt")
		return
	}

	if u, err := url.Parse(item.URL); err == nil {
		if _, applied := delayOnce.LoadOrStore(item.Host, true); !applied {
			limiter.SetDelay(item.Host, robots.CrawlDelay(item.Host, u.Scheme))
		}
	}

	if err := limiter.Wait(ctx, item.Host); err != nil {
		return // Crawl cancelled while waiting for politeness
	}

	// In-flight fetches survive crawl cancellation up to the per-page budget.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.PerPageTimeout)
	defer cancel()

	result, err := o.fetcher.Fetch(fetchCtx, item.URL, interfaces.FetchOptions{
		Timeout:   opts.PerPageTimeout,
		RenderJS:  opts.RenderJS,
		UserAgent: opts.UserAgent,
	})
	if err != nil {
		kind := FetchErrNetwork
		var fe *FetchError
		if errors.As(err, &fe) {
			kind = fe.Kind
		}
		limiter.ReportStatus(item.Host, 0)
		writer.RecordError(models.CrawlError{URL: item.URL, Kind: string(kind), Message: err.Error()})
		return
	}

	limiter.ReportStatus(item.Host, result.HTTPStatus)
	frontier.MarkCrawled(item.URL, result.HTTPStatus)

	if result.HTTPStatus >= 400 {
		writer.RecordError(models.CrawlError{
			URL:     item.URL,
			Kind:    string(FetchErrHTTP),
			Message: fmt.Sprintf("HTTP %d", result.HTTPStatus),
		})
	}

	page := &models.Page{
		PageMeta: models.PageMeta{
			URL:             item.URL,
			FinalURL:        result.FinalURL,
			HTTPStatus:      result.HTTPStatus,
			FetchedAt:       time.Now().UTC(),
			Depth:           item.Depth,
			Title:           result.Title,
			ResponseHeaders: result.ResponseHeaders,
			Rendered:        result.Rendered,
		},
		ContentRaw:      result.ContentRaw,
		ContentCleaned:  result.ContentCleaned,
		ContentMarkdown: result.ContentMarkdown,
	}

	// Outbound links are filtered to internal, normalised targets before they
	// reach the page record or the frontier.
	if result.HTTPStatus < 400 {
		for _, link := range result.Links {
			normalized, err := Normalize(link, opts.TrackingParams)
			if err != nil {
				continue
			}
			u, err := url.Parse(normalized)
			if err != nil || !SameSite(frontierRootHost(frontier), u.Host, opts.IncludeSubdomains) {
				continue
			}
			page.OutboundLinks = append(page.OutboundLinks, normalized)
			if _, err := frontier.Submit(link, item.Depth+1); err != nil {
				o.logger.Debug().Err(err).Str("link", link).Msg("Link rejected by frontier")
			}
		}
	}

	if err := writer.WritePage(page); err != nil {
		writer.RecordError(models.CrawlError{URL: item.URL, Kind: "write", Message: err.Error()})
		return
	}

	o.publish(interfaces.EventPageCrawled, project.Slug, item.URL, map[string]interface{}{
		"status": result.HTTPStatus,
		"depth":  item.Depth,
		"pages":  writer.PageCount(),
	})
}

// terminationStatus decides how the snapshot is sealed.
func (o *Orchestrator) terminationStatus(ctx context.Context, frontier *Frontier, writer *workspace.SnapshotWriter, opts CrawlOptions) (models.SnapshotStatus, string) {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return models.SnapshotPartial, "cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.SnapshotPartial, "overall timeout exceeded"
	case opts.MaxPages > 0 && frontier.LimitReached():
		return models.SnapshotPartial, fmt.Sprintf("max_pages (%d) reached", opts.MaxPages)
	case writer.PageCount() == 0 && opts.MaxPages != 0:
		return models.SnapshotFailed, ""
	default:
		return models.SnapshotComplete, ""
	}
}

func frontierRootHost(f *Frontier) string { return f.rootHost }

func (o *Orchestrator) publish(t interfaces.EventType, project, msg string, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	o.events.Publish(interfaces.Event{Type: t, Project: project, Message: msg, Data: data})
}
