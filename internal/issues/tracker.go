// Package issues derives stateful issues from analyzer findings and walks
// them through the open/investigating/fixed/verified state machine across
// runs.
package issues

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

const systemActor = "system"

// Tracker owns the issues.json register for one project.
type Tracker struct {
	path   string
	logger arbor.ILogger
}

// NewTracker creates a tracker over <projectDir>/issues.json.
func NewTracker(projectDir string, logger arbor.ILogger) *Tracker {
	return &Tracker{path: filepath.Join(projectDir, "issues.json"), logger: logger}
}

// Load reads the register, returning an empty one when none exists yet.
func (t *Tracker) Load() (*models.IssueRegister, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.IssueRegister{NextID: 1}, nil
		}
		return nil, common.ResourceError(err, "failed to read issue register")
	}
	var reg models.IssueRegister
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, common.ResourceError(err, "corrupt issue register at %s", t.path)
	}
	if reg.NextID == 0 {
		reg.NextID = 1
	}
	return &reg, nil
}

func (t *Tracker) save(reg *models.IssueRegister) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return common.InternalError(fmt.Errorf("marshal issue register: %w", err))
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return common.ResourceError(err, "failed to write issue register")
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return common.ResourceError(err, "failed to replace issue register")
	}
	return nil
}

// PromotionReport summarises what one run did to the register.
type PromotionReport struct {
	Opened   []*models.Issue
	Reopened []*models.Issue
	Updated  []*models.Issue
	Resolved []*models.Issue
}

// Promote folds the findings of a completed run into the register.
// pluginsRun lists the analyzers that actually executed: for those, the
// absence of a previously tracked fingerprint is evidence the problem is gone
// and the issue auto-resolves. Issues of plugins that did not run are
// untouched.
func (t *Tracker) Promote(resultsByPlugin map[string][]models.Finding, pluginsRun []string, now time.Time) (*PromotionReport, error) {
	reg, err := t.Load()
	if err != nil {
		return nil, err
	}
	report := &PromotionReport{}
	now = now.UTC()

	ranSet := make(map[string]bool, len(pluginsRun))
	for _, p := range pluginsRun {
		ranSet[p] = true
	}

	// Index issues by fingerprint. The register invariant allows at most one
	// active issue per fingerprint; resolved duplicates are superseded by the
	// newest entry.
	byFingerprint := make(map[string]*models.Issue)
	for _, issue := range reg.Issues {
		if existing, ok := byFingerprint[issue.Fingerprint]; !ok || issue.Status.Active() || !existing.Status.Active() {
			byFingerprint[issue.Fingerprint] = issue
		}
	}

	seen := make(map[string]bool)
	for _, plugin := range pluginsRun {
		for _, finding := range resultsByPlugin[plugin] {
			fp := Fingerprint(plugin, finding)
			if seen[fp] {
				t.mergeURL(byFingerprint[fp], finding.URL)
				continue
			}
			seen[fp] = true

			issue, tracked := byFingerprint[fp]
			switch {
			case !tracked:
				issue = t.open(reg, plugin, fp, finding, now)
				byFingerprint[fp] = issue
				report.Opened = append(report.Opened, issue)
			case issue.Status.Active():
				issue.LastSeenAt = now
				t.mergeURL(issue, finding.URL)
				report.Updated = append(report.Updated, issue)
			default:
				// Rediscovery: fixed|verified -> open, history appended,
				// first_detected_at preserved.
				issue.History = append(issue.History, models.IssueTransition{
					From: issue.Status, To: models.IssueOpen, At: now, Actor: systemActor,
				})
				issue.Status = models.IssueOpen
				issue.LastSeenAt = now
				issue.ResolvedAt = nil
				t.mergeURL(issue, finding.URL)
				report.Reopened = append(report.Reopened, issue)
			}
		}
	}

	// Auto-resolution: active issues whose plugin ran but whose fingerprint
	// did not reappear.
	for _, issue := range reg.Issues {
		if !issue.Status.Active() || !ranSet[issue.PluginName] || seen[issue.Fingerprint] {
			continue
		}
		resolvedAt := now
		issue.History = append(issue.History, models.IssueTransition{
			From: issue.Status, To: models.IssueFixed, At: now, Actor: systemActor,
		})
		issue.Status = models.IssueFixed
		issue.ResolvedAt = &resolvedAt
		report.Resolved = append(report.Resolved, issue)
	}

	if err := t.save(reg); err != nil {
		return nil, err
	}

	t.logger.Info().
		Int("opened", len(report.Opened)).
		Int("reopened", len(report.Reopened)).
		Int("resolved", len(report.Resolved)).
		Msg("Issue register updated")
	return report, nil
}

// open creates a new issue with the next zero-padded id. IDs are never
// reused, even after deletion.
func (t *Tracker) open(reg *models.IssueRegister, plugin, fingerprint string, finding models.Finding, now time.Time) *models.Issue {
	id := fmt.Sprintf("%04d", reg.NextID)
	reg.NextID++

	title := finding.Title
	if title == "" {
		title = finding.Category
	}
	issue := &models.Issue{
		ID:              id,
		PluginName:      plugin,
		Fingerprint:     fingerprint,
		Priority:        priorityFor(finding.Severity),
		Status:          models.IssueOpen,
		Title:           title,
		FirstDetectedAt: now,
		LastSeenAt:      now,
		History: []models.IssueTransition{
			{From: "", To: models.IssueOpen, At: now, Actor: systemActor},
		},
	}
	if finding.URL != "" {
		issue.AffectedURLs = []string{finding.URL}
	}
	reg.Issues = append(reg.Issues, issue)
	return issue
}

func (t *Tracker) mergeURL(issue *models.Issue, url string) {
	if issue == nil || url == "" {
		return
	}
	for _, u := range issue.AffectedURLs {
		if u == url {
			return
		}
	}
	issue.AffectedURLs = append(issue.AffectedURLs, url)
	sort.Strings(issue.AffectedURLs)
}

func priorityFor(severity models.FindingSeverity) models.IssuePriority {
	switch severity {
	case models.SeverityHigh:
		return models.PriorityHigh
	case models.SeverityLow:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

// Transition applies a manual state change. Illegal transitions fail without
// mutating the register.
func (t *Tracker) Transition(issueID string, target models.IssueStatus, actor string, now time.Time) (*models.Issue, error) {
	reg, err := t.Load()
	if err != nil {
		return nil, err
	}
	var issue *models.Issue
	for _, i := range reg.Issues {
		if i.ID == issueID {
			issue = i
			break
		}
	}
	if issue == nil {
		return nil, common.NotFoundError("issue %q not found", issueID)
	}
	if !issue.Status.CanTransitionTo(target) {
		return nil, common.UsageError("invalid_transition: %s -> %s", issue.Status, target)
	}
	if actor == "" {
		actor = "manual"
	}

	now = now.UTC()
	issue.History = append(issue.History, models.IssueTransition{
		From: issue.Status, To: target, At: now, Actor: actor,
	})
	issue.Status = target
	if target == models.IssueFixed {
		resolvedAt := now
		issue.ResolvedAt = &resolvedAt
	}

	if err := t.save(reg); err != nil {
		return nil, err
	}
	return issue, nil
}

// List returns issues filtered by status and/or plugin, empty strings
// matching everything. Sorted by id.
func (t *Tracker) List(status models.IssueStatus, plugin string) ([]*models.Issue, error) {
	reg, err := t.Load()
	if err != nil {
		return nil, err
	}
	var out []*models.Issue
	for _, issue := range reg.Issues {
		if status != "" && issue.Status != status {
			continue
		}
		if plugin != "" && issue.PluginName != plugin {
			continue
		}
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
