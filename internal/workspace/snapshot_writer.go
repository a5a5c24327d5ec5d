package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

const (
	markerPartial  = ".partial"
	markerComplete = ".complete"
)

// SnapshotWriter persists one crawl. Writes are serialised through a single
// mutex; admission order is carried by the sitemap entries handed to Seal,
// not by write order. Seal is the single atomic rename of the .partial
// marker to .complete.
type SnapshotWriter struct {
	id      string
	dir     string
	rootURL string
	logger  arbor.ILogger

	mu        sync.Mutex
	startedAt time.Time
	pages     []models.PageMeta
	taken     map[string]string // Page slug -> URL
	errors    []models.CrawlError
	warnings  []string
	crawlLog  *os.File
	sealed    bool
}

// NewSnapshotID returns a lexicographically sortable UTC timestamp id.
func NewSnapshotID(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// NewSnapshotWriter allocates the snapshot directory and drops the .partial
// marker. Readers that see no .complete marker treat the snapshot as
// in-progress.
func NewSnapshotWriter(projectDir, snapshotID, rootURL string, logger arbor.ILogger) (*SnapshotWriter, error) {
	dir := filepath.Join(projectDir, "snapshots", snapshotID)
	if err := os.MkdirAll(filepath.Join(dir, "pages"), 0755); err != nil {
		return nil, common.ResourceError(err, "failed to create snapshot dir %s", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, markerPartial), nil, 0644); err != nil {
		return nil, common.ResourceError(err, "failed to create partial marker in %s", dir)
	}

	crawlLog, err := os.Create(filepath.Join(dir, "crawl.log"))
	if err != nil {
		return nil, common.ResourceError(err, "failed to create crawl log in %s", dir)
	}

	return &SnapshotWriter{
		id:        snapshotID,
		dir:       dir,
		rootURL:   rootURL,
		logger:    logger,
		startedAt: time.Now().UTC(),
		taken:     make(map[string]string),
		crawlLog:  crawlLog,
	}, nil
}

// ID returns the snapshot id.
func (sw *SnapshotWriter) ID() string { return sw.id }

// Dir returns the snapshot directory.
func (sw *SnapshotWriter) Dir() string { return sw.dir }

// WritePage persists one page's artefacts (raw HTML, cleaned HTML, markdown,
// metadata) under its per-URL subdirectory.
func (sw *SnapshotWriter) WritePage(page *models.Page) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.sealed {
		return common.InternalError(fmt.Errorf("write to sealed snapshot %s", sw.id))
	}

	slug := pageSlug(page.URL, sw.taken)
	pageDir := filepath.Join(sw.dir, "pages", slug)
	if err := os.MkdirAll(pageDir, 0755); err != nil {
		return common.ResourceError(err, "failed to create page dir for %s", page.URL)
	}

	files := map[string]string{
		"raw.html":     page.ContentRaw,
		"cleaned.html": page.ContentCleaned,
		"content.md":   page.ContentMarkdown,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(pageDir, name), []byte(content), 0644); err != nil {
			return common.ResourceError(err, "failed to write %s for %s", name, page.URL)
		}
	}

	meta := page.PageMeta
	meta.PageDir = filepath.Join("pages", slug)
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return common.InternalError(fmt.Errorf("marshal page meta: %w", err))
	}
	if err := os.WriteFile(filepath.Join(pageDir, "meta.json"), metaJSON, 0644); err != nil {
		return common.ResourceError(err, "failed to write meta for %s", page.URL)
	}

	sw.pages = append(sw.pages, meta)
	sw.logLine("page %s status=%d depth=%d", page.URL, page.HTTPStatus, page.Depth)
	return nil
}

// RecordError appends a per-URL failure. Failures never abort the crawl.
func (sw *SnapshotWriter) RecordError(e models.CrawlError) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.errors = append(sw.errors, e)
	sw.logLine("error %s kind=%s: %s", e.URL, e.Kind, e.Message)
}

// RecordWarning appends an operational warning to the summary.
func (sw *SnapshotWriter) RecordWarning(msg string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.warnings = append(sw.warnings, msg)
	sw.logLine("warning: %s", msg)
}

// PageCount returns the number of pages written so far.
func (sw *SnapshotWriter) PageCount() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.pages)
}

// Seal writes sitemap.json and summary.json, closes the crawl log, and
// atomically renames .partial to .complete. After Seal the snapshot is
// immutable.
func (sw *SnapshotWriter) Seal(status models.SnapshotStatus, cancellationReason string, robotsEnabled bool, robotsFailures []string, sitemap []models.SitemapEntry) (*models.Snapshot, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.sealed {
		return nil, common.InternalError(fmt.Errorf("snapshot %s already sealed", sw.id))
	}

	finishedAt := time.Now().UTC()

	sitemapDoc := models.Sitemap{Root: sw.rootURL, Pages: sitemap}
	if err := sw.writeJSON("sitemap.json", sitemapDoc); err != nil {
		return nil, err
	}

	summary := models.SnapshotSummary{
		StartedAt:  sw.startedAt,
		FinishedAt: finishedAt,
		Status:     status,
		Counts: models.SummaryCounts{
			Pages:  len(sw.pages),
			Errors: len(sw.errors),
		},
		Errors:             sw.errors,
		RobotsEnabled:      robotsEnabled,
		RobotsFailures:     robotsFailures,
		CancellationReason: cancellationReason,
		Warnings:           sw.warnings,
		DurationSeconds:    finishedAt.Sub(sw.startedAt).Seconds(),
	}
	if summary.Errors == nil {
		summary.Errors = []models.CrawlError{}
	}
	if err := sw.writeJSON("summary.json", summary); err != nil {
		return nil, err
	}

	sw.logLine("sealed status=%s pages=%d errors=%d", status, len(sw.pages), len(sw.errors))
	if sw.crawlLog != nil {
		sw.crawlLog.Close()
		sw.crawlLog = nil
	}

	if err := os.Rename(filepath.Join(sw.dir, markerPartial), filepath.Join(sw.dir, markerComplete)); err != nil {
		return nil, common.ResourceError(err, "failed to seal snapshot %s", sw.id)
	}
	sw.sealed = true

	return &models.Snapshot{
		ID:         sw.id,
		RootURL:    sw.rootURL,
		StartedAt:  sw.startedAt,
		FinishedAt: finishedAt,
		Status:     status,
		Summary:    summary,
	}, nil
}

func (sw *SnapshotWriter) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return common.InternalError(fmt.Errorf("marshal %s: %w", name, err))
	}
	if err := writeFileAtomic(filepath.Join(sw.dir, name), data); err != nil {
		return common.ResourceError(err, "failed to write %s", name)
	}
	return nil
}

// logLine appends to the plain-text per-crawl log inside the snapshot.
// Caller holds the mutex (or the writer is not yet shared).
func (sw *SnapshotWriter) logLine(format string, args ...interface{}) {
	if sw.crawlLog == nil {
		return
	}
	fmt.Fprintf(sw.crawlLog, "%s "+format+"\n",
		append([]interface{}{time.Now().UTC().Format(time.RFC3339)}, args...)...)
}
