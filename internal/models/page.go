package models

import "time"

// Page is one crawled URL within a snapshot. Content artefacts (raw HTML,
// cleaned HTML, markdown) live next to the metadata on disk; PageMeta is what
// gets written to meta.json.
type Page struct {
	PageMeta
	ContentRaw      string `json:"-"`
	ContentCleaned  string `json:"-"`
	ContentMarkdown string `json:"-"`
}

// PageMeta is the per-page metadata record persisted as meta.json.
type PageMeta struct {
	URL             string              `json:"url"` // Canonical (normalised) form
	FinalURL        string              `json:"final_url,omitempty"`
	HTTPStatus      int                 `json:"http_status"`
	FetchedAt       time.Time           `json:"fetched_at"`
	Depth           int                 `json:"depth"`
	Title           string              `json:"title"`
	ResponseHeaders map[string][]string `json:"response_headers"`
	OutboundLinks   []string            `json:"outbound_links"` // Internal, already normalised
	Rendered        bool                `json:"rendered"`       // True when the DOM came from the headless engine
	PageDir         string              `json:"page_dir"`       // Snapshot-relative artefact directory
}
