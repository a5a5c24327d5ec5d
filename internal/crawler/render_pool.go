package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
)

// RenderPool manages a fixed set of headless browser contexts for
// JavaScript rendering, handed out round-robin. Browser startup is expensive;
// the pool keeps instances alive for the lifetime of the process.
type RenderPool struct {
	cfg    common.RenderConfig
	logger arbor.ILogger

	mu               sync.Mutex
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	next             int
	initialized      bool
	userAgent        string
}

// NewRenderPool creates an uninitialized pool. Init must be called before
// Render; callers that never render never pay for a browser.
func NewRenderPool(cfg common.RenderConfig, userAgent string, logger arbor.ILogger) *RenderPool {
	return &RenderPool{cfg: cfg, userAgent: userAgent, logger: logger}
}

// Init starts the browser instances.
func (p *RenderPool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("render pool already initialized")
	}
	if p.cfg.MaxInstances <= 0 {
		return fmt.Errorf("render pool max_instances must be positive, got %d", p.cfg.MaxInstances)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(p.userAgent),
	)

	for i := 0; i < p.cfg.MaxInstances; i++ {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// Start the browser process eagerly so Render never pays startup cost.
		if err := chromedp.Run(browserCtx); err != nil {
			allocCancel()
			browserCancel()
			p.shutdownLocked()
			return fmt.Errorf("failed to start browser %d: %w", i, err)
		}

		p.browsers = append(p.browsers, browserCtx)
		p.browserCancels = append(p.browserCancels, browserCancel)
		p.allocatorCancels = append(p.allocatorCancels, allocCancel)
	}

	p.initialized = true
	p.logger.Info().Int("instances", p.cfg.MaxInstances).Msg("Render pool initialized")
	return nil
}

// Render navigates to the URL, waits for the page to settle, and returns the
// rendered DOM as HTML.
func (p *RenderPool) Render(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return "", fmt.Errorf("render pool not initialized")
	}
	browser := p.browsers[p.next%len(p.browsers)]
	p.next++
	p.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browser)
	defer tabCancel()

	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	// Propagate caller cancellation into the tab.
	go func() {
		select {
		case <-ctx.Done():
			runCancel()
		case <-runCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(1280, 1024, 1.0, false),
		chromedp.Navigate(rawURL),
		chromedp.Sleep(p.cfg.WaitTime),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render failed for %s: %w", rawURL, err)
	}
	return html, nil
}

// Shutdown tears the browsers down.
func (p *RenderPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdownLocked()
	p.initialized = false
}

func (p *RenderPool) shutdownLocked() {
	for _, cancel := range p.browserCancels {
		cancel()
	}
	for _, cancel := range p.allocatorCancels {
		cancel()
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
}
