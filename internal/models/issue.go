package models

import "time"

// IssueStatus is the lifecycle state of a tracked issue.
type IssueStatus string

const (
	IssueOpen          IssueStatus = "open"
	IssueInvestigating IssueStatus = "investigating"
	IssueFixed         IssueStatus = "fixed"
	IssueVerified      IssueStatus = "verified"
)

// IssuePriority derives from the worst severity among the issue's findings.
type IssuePriority string

const (
	PriorityHigh   IssuePriority = "high"
	PriorityMedium IssuePriority = "medium"
	PriorityLow    IssuePriority = "low"
)

// manualTransitions enumerates the caller-initiated edges of the state
// machine. fixed|verified -> open happens only via rediscovery and is not
// listed here.
var manualTransitions = map[IssueStatus][]IssueStatus{
	IssueOpen:          {IssueInvestigating, IssueFixed},
	IssueInvestigating: {IssueOpen, IssueFixed},
	IssueFixed:         {IssueVerified},
	IssueVerified:      {},
}

// CanTransitionTo reports whether a manual transition from s to target is
// legal.
func (s IssueStatus) CanTransitionTo(target IssueStatus) bool {
	for _, allowed := range manualTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Active reports whether the issue still counts against the open set used for
// fingerprint uniqueness and auto-resolution.
func (s IssueStatus) Active() bool {
	return s == IssueOpen || s == IssueInvestigating
}

// IssueTransition is one append-only history entry.
type IssueTransition struct {
	From  IssueStatus `json:"from"`
	To    IssueStatus `json:"to"`
	At    time.Time   `json:"at"`
	Actor string      `json:"actor"` // "system" for automatic transitions
}

// Issue is a tracked problem across runs. The fingerprint identifies the same
// problem between runs; at most one issue per fingerprint may be active at a
// time within a project.
type Issue struct {
	ID              string            `json:"id"` // Zero-padded project-scoped sequence
	PluginName      string            `json:"plugin_name"`
	Fingerprint     string            `json:"fingerprint"`
	Priority        IssuePriority     `json:"priority"`
	Status          IssueStatus       `json:"status"`
	Title           string            `json:"title"`
	AffectedURLs    []string          `json:"affected_urls"`
	FirstDetectedAt time.Time         `json:"first_detected_at"`
	LastSeenAt      time.Time         `json:"last_seen_at"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	History         []IssueTransition `json:"history"`
}

// IssueRegister is the issues.json document: the counter plus every issue ever
// opened for the project. IDs are never reused, even after deletion.
type IssueRegister struct {
	NextID int      `json:"next_id"`
	Issues []*Issue `json:"issues"`
}
