package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/analyzers"
	"github.com/sitewarden/sitewarden/internal/app"
	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/notify"
	"github.com/sitewarden/sitewarden/internal/report"
	"github.com/sitewarden/sitewarden/internal/scheduler"
	"github.com/sitewarden/sitewarden/internal/server"
)

// stringList collects repeatable flags (--include a --include b).
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runProject(application *app.App, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden project new <url> | project list")
		return exitUsage
	}
	switch args[0] {
	case "new":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: sitewarden project new <url>")
			return exitUsage
		}
		project, err := application.CreateProject(args[1])
		if err != nil {
			return reportError(err)
		}
		fmt.Printf("Created project %s for %s\n", project.Slug, project.RootURL)
		return exitOK
	case "list":
		projects, err := application.ListProjects()
		if err != nil {
			return reportError(err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return exitOK
		}
		for _, p := range projects {
			fmt.Printf("%-40s %s (updated %s)\n", p.Slug, p.RootURL, p.LastUpdated.Format("2006-01-02 15:04"))
		}
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown project subcommand %q\n", args[0])
		return exitUsage
	}
}

func runCrawl(ctx context.Context, application *app.App, args []string) int {
	if len(args) < 2 || args[0] != "site" {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden crawl site <slug> [flags]")
		return exitUsage
	}
	slug := args[1]

	fs := flag.NewFlagSet("crawl site", flag.ContinueOnError)
	maxPages := fs.Int("max-pages", 0, "Crawl admission ceiling (overrides config)")
	maxDepth := fs.Int("max-depth", -2, "Link-depth ceiling, -1 = unbounded (overrides config)")
	renderJS := fs.Bool("render", false, "Render pages with the headless browser")
	var includes, excludes stringList
	fs.Var(&includes, "include", "Path glob to include (repeatable)")
	fs.Var(&excludes, "exclude", "Path glob to exclude (repeatable)")
	if err := fs.Parse(args[2:]); err != nil {
		return exitUsage
	}

	opts := application.CrawlOptions()
	if *maxPages > 0 {
		opts.MaxPages = *maxPages
	}
	if *maxDepth >= -1 {
		opts.MaxDepth = *maxDepth
	}
	if len(includes) > 0 {
		opts.IncludePatterns = includes
	}
	if len(excludes) > 0 {
		opts.ExcludePatterns = excludes
	}
	if *renderJS {
		opts.RenderJS = true
		if err := application.InitRenderer(); err != nil {
			return reportError(err)
		}
	}

	snapshot, err := application.Crawl(ctx, slug, opts)
	if err != nil {
		return reportError(err)
	}
	fmt.Printf("Snapshot %s sealed: status=%s pages=%d errors=%d duration=%.1fs\n",
		snapshot.ID, snapshot.Status,
		snapshot.Summary.Counts.Pages, snapshot.Summary.Counts.Errors,
		snapshot.Summary.DurationSeconds)
	if snapshot.Summary.CancellationReason != "" {
		fmt.Printf("Reason: %s\n", snapshot.Summary.CancellationReason)
	}
	return exitOK
}

func runTest(ctx context.Context, application *app.App, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden test list-plugins | test run <slug> [flags] | test view-issues <slug> [flags]")
		return exitUsage
	}
	switch args[0] {
	case "list-plugins":
		for _, d := range application.ListPlugins() {
			fmt.Printf("%-18s %s\n", d.Name, d.Summary)
			for key, field := range d.ConfigSpec {
				required := ""
				if field.Required {
					required = " (required)"
				}
				fmt.Printf("    %-20s %-8s%s %s\n", key, field.Type, required, field.Description)
			}
		}
		return exitOK
	case "run":
		return runTestRun(ctx, application, args[1:])
	case "view-issues":
		return runViewIssues(application, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown test subcommand %q\n", args[0])
		return exitUsage
	}
}

func runTestRun(ctx context.Context, application *app.App, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden test run <slug> [--test NAME]... [--snapshot TS] [--timeout SEC] [--config NAME:JSON]...")
		return exitUsage
	}
	slug := args[0]

	fs := flag.NewFlagSet("test run", flag.ContinueOnError)
	snapshotID := fs.String("snapshot", "", "Snapshot id (default: latest sealed)")
	timeoutSec := fs.Int("timeout", 0, "Per-plugin timeout in seconds")
	var tests, configs stringList
	fs.Var(&tests, "test", "Analyzer to run (repeatable, default all)")
	fs.Var(&configs, "config", "Per-plugin config as NAME:JSON (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	configMap := make(map[string]analyzers.Config)
	for _, c := range configs {
		name, raw, ok := strings.Cut(c, ":")
		if !ok {
			fmt.Fprintf(os.Stderr, "Invalid --config %q: want NAME:JSON\n", c)
			return exitUsage
		}
		var cfg analyzers.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid JSON in --config %s: %v\n", name, err)
			return exitUsage
		}
		configMap[name] = cfg
	}

	rep, err := application.RunTests(ctx, analyzers.RunRequest{
		Project:    slug,
		SnapshotID: *snapshotID,
		Plugins:    tests,
		Configs:    configMap,
		Timeout:    time.Duration(*timeoutSec) * time.Second,
	})
	if err != nil {
		return reportError(err)
	}

	for _, r := range rep.Results {
		fmt.Printf("%-18s %-8s %s\n", r.PluginName, r.Status, r.Summary)
	}
	if rep.Promotion != nil {
		fmt.Printf("Issues: %d opened, %d reopened, %d resolved\n",
			len(rep.Promotion.Opened), len(rep.Promotion.Reopened), len(rep.Promotion.Resolved))
	}
	if rep.HasFindings() {
		return exitFindings
	}
	return exitOK
}

func runViewIssues(application *app.App, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden test view-issues <slug> [--status S] [--plugin P]")
		return exitUsage
	}
	slug := args[0]

	fs := flag.NewFlagSet("test view-issues", flag.ContinueOnError)
	status := fs.String("status", "", "Filter by status (open|investigating|fixed|verified)")
	plugin := fs.String("plugin", "", "Filter by plugin name")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	issues, err := application.ListIssues(slug, models.IssueStatus(*status), *plugin)
	if err != nil {
		return reportError(err)
	}
	if len(issues) == 0 {
		fmt.Println("No matching issues.")
		return exitOK
	}
	for _, i := range issues {
		fmt.Printf("[%s] %-13s %-8s %-18s %s\n", i.ID, i.Status, i.Priority, i.PluginName, i.Title)
		for _, u := range i.AffectedURLs {
			fmt.Printf("       %s\n", u)
		}
	}
	return exitOK
}

func runIssue(application *app.App, args []string) int {
	if len(args) < 4 || args[0] != "transition" {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden issue transition <slug> <id> <status> [--actor NAME]")
		return exitUsage
	}
	slug, id, status := args[1], args[2], args[3]

	fs := flag.NewFlagSet("issue transition", flag.ContinueOnError)
	actor := fs.String("actor", "", "Actor recorded in the issue history")
	if err := fs.Parse(args[4:]); err != nil {
		return exitUsage
	}

	issue, err := application.TransitionIssue(slug, id, models.IssueStatus(status), *actor)
	if err != nil {
		return reportError(err)
	}
	fmt.Printf("Issue %s is now %s\n", issue.ID, issue.Status)
	return exitOK
}

func runReport(application *app.App, args []string) int {
	if len(args) < 2 || args[0] != "generate" {
		fmt.Fprintln(os.Stderr, "Usage: sitewarden report generate <slug> [--format html|pdf] [--out DIR]")
		return exitUsage
	}
	slug := args[1]

	fs := flag.NewFlagSet("report generate", flag.ContinueOnError)
	format := fs.String("format", "html", "Report format: html or pdf")
	outDir := fs.String("out", "reports", "Output directory")
	if err := fs.Parse(args[2:]); err != nil {
		return exitUsage
	}

	generator := report.NewGenerator(application.Workspace(), application.Logger)
	path, err := generator.Generate(slug, report.Format(*format), *outDir)
	if err != nil {
		return reportError(err)
	}
	fmt.Printf("Report written to %s\n", path)
	return exitOK
}

// runServe starts the HTTP API, websocket event stream, and (when enabled)
// the cron scheduler, blocking until interrupted.
func runServe(ctx context.Context, application *app.App, config *common.Config, logger arbor.ILogger) int {
	common.PrintBanner(common.GetVersion())

	notifier := notify.NewManager(config.Notify, logger)

	if config.Scheduler.Enabled {
		sched := scheduler.NewService(application, notifier, logger)
		if err := sched.Start(config.Scheduler); err != nil {
			return reportError(err)
		}
		defer sched.Stop()
	}

	srv := server.New(application)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return reportError(err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Graceful shutdown failed")
		}
	}
	return exitOK
}
