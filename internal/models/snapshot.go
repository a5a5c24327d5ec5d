package models

import "time"

// SnapshotStatus describes how a crawl terminated.
type SnapshotStatus string

const (
	SnapshotComplete SnapshotStatus = "complete" // Frontier exhausted naturally
	SnapshotPartial  SnapshotStatus = "partial"  // Limit, timeout, or cancellation
	SnapshotFailed   SnapshotStatus = "failed"   // Nothing usable was written
)

// Snapshot is the immutable record of one crawl. The ID is a lexicographically
// sortable UTC timestamp, so the latest snapshot is always the last in sort
// order.
type Snapshot struct {
	ID         string          `json:"snapshot_id"`
	RootURL    string          `json:"root_url"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Status     SnapshotStatus  `json:"status"`
	Summary    SnapshotSummary `json:"summary"`
}

// SnapshotSummary aggregates counts and failures for a crawl. Written as
// summary.json when the snapshot is sealed.
type SnapshotSummary struct {
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	Status             SnapshotStatus `json:"status"`
	Counts             SummaryCounts  `json:"counts"`
	Errors             []CrawlError   `json:"errors"`
	RobotsEnabled      bool           `json:"robots_enabled"`
	RobotsFailures     []string       `json:"robots_failures,omitempty"` // Hosts whose robots.txt could not be fetched
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
	DurationSeconds    float64        `json:"duration_seconds"`
}

type SummaryCounts struct {
	Pages  int `json:"pages"`
	Errors int `json:"errors"`
}

// CrawlError records one per-URL failure. Failures never abort the crawl.
type CrawlError struct {
	URL     string `json:"url"`
	Kind    string `json:"kind"` // "network", "timeout", "http_error", "render_error"
	Message string `json:"message"`
}

// SitemapEntry is one URL touched by the crawl, crawled or merely discovered.
type SitemapEntry struct {
	URL     string `json:"url"`
	Status  int    `json:"status"` // 0 = discovered but not crawled
	Depth   int    `json:"depth"`
	Crawled bool   `json:"crawled"`
}

// Sitemap is the set of all URLs the crawl touched, written as sitemap.json.
type Sitemap struct {
	Root  string         `json:"root"`
	Pages []SitemapEntry `json:"pages"`
}
