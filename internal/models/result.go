package models

import "time"

// ResultStatus is the outcome of one analyzer invocation.
type ResultStatus string

const (
	ResultPass    ResultStatus = "pass"
	ResultFail    ResultStatus = "fail"
	ResultWarning ResultStatus = "warning"
	ResultError   ResultStatus = "error"
)

// TestResult records one analyzer invocation against one snapshot. Immutable
// once written; deleting the referenced snapshot must not corrupt it, so the
// snapshot is referenced by id only.
type TestResult struct {
	PluginName string                 `json:"plugin_name"`
	SnapshotID string                 `json:"snapshot_id"`
	StartedAt  time.Time              `json:"started_at"`
	Duration   time.Duration          `json:"duration"`
	Status     ResultStatus           `json:"status"`
	Summary    string                 `json:"summary"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Findings   []Finding              `json:"findings,omitempty"`
}

// FindingSeverity maps onto issue priority when a finding is promoted.
type FindingSeverity string

const (
	SeverityHigh   FindingSeverity = "high"
	SeverityMedium FindingSeverity = "medium"
	SeverityLow    FindingSeverity = "low"
)

// Finding is one analyzer-emitted observation. Findings live inside their
// TestResult and are never persisted independently; the issue tracker consumes
// them after each run.
type Finding struct {
	URL      string                 `json:"url"`
	Category string                 `json:"category"`
	Title    string                 `json:"title"`
	Severity FindingSeverity        `json:"severity,omitempty"`
	SiteWide bool                   `json:"site_wide,omitempty"` // Collapse the fingerprint to one site-level issue
	Detail   map[string]interface{} `json:"detail,omitempty"`
}
