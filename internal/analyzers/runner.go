package analyzers

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/interfaces"
	"github.com/sitewarden/sitewarden/internal/issues"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// RunRequest selects what to run. An empty SnapshotID means the latest sealed
// snapshot; empty Plugins means every registered analyzer.
type RunRequest struct {
	Project    string
	SnapshotID string
	Plugins    []string
	Configs    map[string]Config
	Timeout    time.Duration // Per-plugin; default 300s
}

// RunReport is the outcome of one test run.
type RunReport struct {
	Project    string
	SnapshotID string
	Results    []*models.TestResult
	Promotion  *issues.PromotionReport
}

// HasFindings reports whether any analyzer produced a non-pass result.
func (r *RunReport) HasFindings() bool {
	for _, res := range r.Results {
		if res.Status == models.ResultFail || res.Status == models.ResultWarning {
			return true
		}
	}
	return false
}

// Runner sequences selected analyzers against a snapshot, enforces per-plugin
// timeouts, persists results, and feeds findings to the issue tracker.
// Analyzers execute sequentially: predictable resource use and simple
// reasoning beat parallel speed here.
type Runner struct {
	ws       *workspace.Workspace
	registry *Registry
	events   interfaces.EventPublisher
	logger   arbor.ILogger
}

// NewRunner creates a test runner. events may be nil.
func NewRunner(ws *workspace.Workspace, registry *Registry, events interfaces.EventPublisher, logger arbor.ILogger) *Runner {
	return &Runner{ws: ws, registry: registry, events: events, logger: logger}
}

// Run executes the request. A timed-out or panicking analyzer yields an error
// result and never aborts the others.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	project, err := r.ws.Open(req.Project)
	if err != nil {
		return nil, err
	}

	snapshotID := req.SnapshotID
	if snapshotID == "" {
		snapshotID, err = r.ws.LatestSnapshot(req.Project)
		if err != nil {
			return nil, err
		}
	}
	snap, err := r.ws.OpenSnapshot(req.Project, snapshotID)
	if err != nil {
		return nil, err
	}

	plugins := req.Plugins
	if len(plugins) == 0 {
		plugins = r.registry.Names()
	}
	// Resolve every plugin up front so an unknown name fails the run before
	// any state changes.
	selected := make([]Analyzer, 0, len(plugins))
	for _, name := range plugins {
		a, err := r.registry.Get(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, a)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	store := r.ws.Results(req.Project)
	report := &RunReport{Project: req.Project, SnapshotID: snapshotID}
	findingsByPlugin := make(map[string][]models.Finding)
	var ranPlugins []string

	for i, analyzer := range selected {
		name := plugins[i]
		cfg := req.Configs[name]
		if cfg == nil {
			cfg = Config{}
		}

		r.publish(interfaces.EventTestStarted, req.Project, fmt.Sprintf("running %s against %s", name, snapshotID), nil)
		result := r.runOne(ctx, analyzer, name, snap, cfg, timeout)
		report.Results = append(report.Results, result)

		if _, err := store.Append(result); err != nil {
			return nil, err
		}

		// Absence of a finding is only evidence when the analyzer actually
		// completed; errored runs must not auto-resolve anything.
		if result.Status != models.ResultError {
			ranPlugins = append(ranPlugins, name)
			findingsByPlugin[name] = result.Findings
		}

		r.publish(interfaces.EventTestFinished, req.Project,
			fmt.Sprintf("%s finished: %s", name, result.Status),
			map[string]interface{}{"plugin": name, "status": string(result.Status), "findings": len(result.Findings)})
	}

	if len(ranPlugins) > 0 {
		tracker := issues.NewTracker(r.ws.ProjectDir(req.Project), r.logger)
		promotion, err := tracker.Promote(findingsByPlugin, ranPlugins, time.Now())
		if err != nil {
			return nil, err
		}
		report.Promotion = promotion
		r.publish(interfaces.EventIssuesUpdated, req.Project,
			fmt.Sprintf("issues: %d opened, %d reopened, %d resolved",
				len(promotion.Opened), len(promotion.Reopened), len(promotion.Resolved)), nil)
	}

	if err := r.ws.Touch(project.Slug); err != nil {
		r.logger.Warn().Err(err).Str("project", project.Slug).Msg("Failed to touch project metadata")
	}
	return report, nil
}

// runOne invokes a single analyzer inside a bounded cooperative task with
// panic isolation.
func (r *Runner) runOne(ctx context.Context, analyzer Analyzer, name string, snap *workspace.Snapshot, cfg Config, timeout time.Duration) *models.TestResult {
	startedAt := time.Now().UTC()

	if err := ValidateConfig(analyzer.Describe(), cfg); err != nil {
		result := newResult(name, snap.ID, startedAt)
		result.Status = models.ResultError
		result.Summary = err.Error()
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *models.TestResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("plugin", name).
					Str("panic", fmt.Sprint(rec)).
					Str("stack", string(debug.Stack())).
					Msg("Analyzer panicked")
				done <- outcome{err: common.InternalError(fmt.Errorf("analyzer %s panicked: %v", name, rec))}
			}
		}()
		res, err := analyzer.Analyze(runCtx, snap, cfg)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		result := newResult(name, snap.ID, startedAt)
		result.Status = models.ResultError
		result.Duration = time.Since(startedAt)
		if ctx.Err() != nil {
			result.Summary = "cancelled"
		} else {
			result.Summary = "timeout"
		}
		return result
	case out := <-done:
		if out.err != nil {
			result := newResult(name, snap.ID, startedAt)
			result.Status = models.ResultError
			result.Summary = out.err.Error()
			result.Duration = time.Since(startedAt)
			return result
		}
		result := out.result
		result.PluginName = name
		result.SnapshotID = snap.ID
		result.StartedAt = startedAt
		result.Duration = time.Since(startedAt)
		return result
	}
}

func (r *Runner) publish(t interfaces.EventType, project, msg string, data map[string]interface{}) {
	if r.events == nil {
		return
	}
	r.events.Publish(interfaces.Event{Type: t, Project: project, Message: msg, Data: data})
}
