// Package app wires the engine together: workspace, crawler, analyzer
// registry, test runner, and issue tracking behind one facade that the CLI,
// HTTP server, scheduler, and MCP surface all consume.
package app

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/analyzers"
	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/crawler"
	"github.com/sitewarden/sitewarden/internal/events"
	"github.com/sitewarden/sitewarden/internal/issues"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// App owns the engine's long-lived services. Construct once at startup and
// share; every method is safe for concurrent use, with per-project writer
// exclusion enforced through the workspace lock.
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Events   *events.Service
	Registry *analyzers.Registry

	workspace *workspace.Workspace
	fetcher   *crawler.Fetcher
	renderer  *crawler.RenderPool
	runner    *analyzers.Runner
}

// New builds the application from configuration. The render pool is created
// but not started; InitRenderer starts it on first need.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ws, err := workspace.New(cfg.Workspace.Root, logger)
	if err != nil {
		return nil, err
	}

	eventService := events.NewService(logger)
	registry := analyzers.DefaultRegistry(logger)

	var renderer *crawler.RenderPool
	if cfg.Render.Enabled {
		renderer = crawler.NewRenderPool(cfg.Render, cfg.Crawler.UserAgent, logger)
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Events:    eventService,
		Registry:  registry,
		workspace: ws,
		fetcher:   crawler.NewFetcher(cfg.Crawler, renderer, logger),
		renderer:  renderer,
	}
	a.runner = analyzers.NewRunner(ws, registry, eventService, logger)
	return a, nil
}

// Workspace exposes the project workspace for read-side callers.
func (a *App) Workspace() *workspace.Workspace { return a.workspace }

// InitRenderer starts the headless browser pool. Idempotent only in the sense
// that callers should invoke it once before the first rendering crawl.
func (a *App) InitRenderer() error {
	if a.renderer == nil {
		return common.UsageError("rendering is disabled in configuration")
	}
	return a.renderer.Init()
}

// Close releases process-wide resources.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Shutdown()
	}
	a.Events.Close()
}

// CreateProject registers a new project for a root URL.
func (a *App) CreateProject(rootURL string) (*models.Project, error) {
	return a.workspace.Create(rootURL)
}

// ListProjects returns every project in the workspace.
func (a *App) ListProjects() ([]*models.Project, error) {
	return a.workspace.List()
}

// OpenProject loads one project by slug.
func (a *App) OpenProject(slug string) (*models.Project, error) {
	return a.workspace.Open(slug)
}

// ListSnapshots returns the snapshot ids for a project, oldest first.
func (a *App) ListSnapshots(slug string) ([]string, error) {
	return a.workspace.ListSnapshots(slug)
}

// Crawl runs one crawl for the project under the given options and returns
// the sealed snapshot. The project writer lock is held for the duration.
func (a *App) Crawl(ctx context.Context, slug string, opts crawler.CrawlOptions) (*models.Snapshot, error) {
	project, err := a.workspace.Open(slug)
	if err != nil {
		return nil, err
	}

	lock, err := a.workspace.LockProject(slug)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	writer, err := workspace.NewSnapshotWriter(
		a.workspace.ProjectDir(slug),
		workspace.NewSnapshotID(time.Now()),
		project.RootURL,
		a.Logger,
	)
	if err != nil {
		return nil, err
	}

	orchestrator := crawler.NewOrchestrator(a.fetcher, a.Events, a.Logger)
	snapshot, err := orchestrator.Crawl(ctx, project, writer, opts)
	if err != nil {
		return nil, err
	}

	if err := a.workspace.Touch(slug); err != nil {
		a.Logger.Warn().Err(err).Str("project", slug).Msg("Failed to touch project metadata")
	}
	return snapshot, nil
}

// CrawlOptions seeds crawl options from configuration for callers that only
// override a few fields.
func (a *App) CrawlOptions() crawler.CrawlOptions {
	return crawler.OptionsFromConfig(a.Config.Crawler)
}

// RunTests executes the selected analyzers against a snapshot and promotes
// the findings into the issue register.
func (a *App) RunTests(ctx context.Context, req analyzers.RunRequest) (*analyzers.RunReport, error) {
	if req.Timeout <= 0 {
		req.Timeout = a.Config.Tests.PluginTimeout
	}
	if req.Configs == nil {
		req.Configs = make(map[string]analyzers.Config)
	}
	// Analyzer tables from the config file apply underneath per-call configs.
	for name, table := range a.Config.Analyzers {
		if _, overridden := req.Configs[name]; !overridden && len(table) > 0 {
			req.Configs[name] = analyzers.Config(table)
		}
	}
	return a.runner.Run(ctx, req)
}

// ListPlugins describes every registered analyzer.
func (a *App) ListPlugins() []analyzers.Description {
	return a.Registry.Describe()
}

// ListResults returns the stored test results for a project, oldest first.
func (a *App) ListResults(slug string) ([]*models.TestResult, error) {
	if _, err := a.workspace.Open(slug); err != nil {
		return nil, err
	}
	return a.workspace.Results(slug).List()
}

// ListIssues returns the project's issues filtered by status and plugin.
func (a *App) ListIssues(slug string, status models.IssueStatus, plugin string) ([]*models.Issue, error) {
	if _, err := a.workspace.Open(slug); err != nil {
		return nil, err
	}
	tracker := issues.NewTracker(a.workspace.ProjectDir(slug), a.Logger)
	return tracker.List(status, plugin)
}

// TransitionIssue applies a manual issue state change.
func (a *App) TransitionIssue(slug, issueID string, target models.IssueStatus, actor string) (*models.Issue, error) {
	if _, err := a.workspace.Open(slug); err != nil {
		return nil, err
	}
	tracker := issues.NewTracker(a.workspace.ProjectDir(slug), a.Logger)
	return tracker.Transition(issueID, target, actor, time.Now())
}
