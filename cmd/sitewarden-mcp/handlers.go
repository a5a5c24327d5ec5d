package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/analyzers"
	"github.com/sitewarden/sitewarden/internal/app"
	"github.com/sitewarden/sitewarden/internal/models"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	return textResult(fmt.Sprintf("Error: "+format, args...))
}

// handleListProjects implements the list_projects tool
func handleListProjects(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := application.ListProjects()
		if err != nil {
			logger.Error().Err(err).Msg("List projects failed")
			return errorResult("%v", err), nil
		}
		if len(projects) == 0 {
			return textResult("No projects in the workspace."), nil
		}
		var b strings.Builder
		b.WriteString("# Projects\n\n")
		for _, p := range projects {
			fmt.Fprintf(&b, "- **%s** — %s (updated %s)\n", p.Slug, p.RootURL, p.LastUpdated.Format("2006-01-02"))
		}
		return textResult(b.String()), nil
	}
}

// handleCreateProject implements the create_project tool
func handleCreateProject(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil || url == "" {
			return errorResult("url parameter is required"), nil
		}
		project, err := application.CreateProject(url)
		if err != nil {
			return errorResult("%v", err), nil
		}
		return textResult(fmt.Sprintf("Created project **%s** for %s", project.Slug, project.RootURL)), nil
	}
}

// handleCrawlSite implements the crawl_site tool
func handleCrawlSite(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := request.RequireString("slug")
		if err != nil || slug == "" {
			return errorResult("slug parameter is required"), nil
		}

		opts := application.CrawlOptions()
		if n := request.GetInt("max_pages", 0); n > 0 {
			opts.MaxPages = n
		}
		if d := request.GetInt("max_depth", -2); d >= -1 {
			opts.MaxDepth = d
		}

		snapshot, err := application.Crawl(ctx, slug, opts)
		if err != nil {
			logger.Error().Err(err).Str("slug", slug).Msg("Crawl failed")
			return errorResult("%v", err), nil
		}
		return textResult(fmt.Sprintf(
			"Snapshot **%s** sealed: status=%s, %d pages, %d errors, %.1fs",
			snapshot.ID, snapshot.Status,
			snapshot.Summary.Counts.Pages, snapshot.Summary.Counts.Errors,
			snapshot.Summary.DurationSeconds)), nil
	}
}

// handleListPlugins implements the list_plugins tool
func handleListPlugins(application *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		b.WriteString("# Analysis plugins\n\n")
		for _, d := range application.ListPlugins() {
			fmt.Fprintf(&b, "## %s\n%s\n", d.Name, d.Summary)
			for key, field := range d.ConfigSpec {
				required := ""
				if field.Required {
					required = ", required"
				}
				fmt.Fprintf(&b, "- `%s` (%s%s): %s\n", key, field.Type, required, field.Description)
			}
			b.WriteString("\n")
		}
		return textResult(b.String()), nil
	}
}

// handleRunTests implements the run_tests tool
func handleRunTests(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := request.RequireString("slug")
		if err != nil || slug == "" {
			return errorResult("slug parameter is required"), nil
		}

		configs := make(map[string]analyzers.Config)
		if raw := request.GetString("configs_json", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &configs); err != nil {
				return errorResult("configs_json is not a valid JSON object: %v", err), nil
			}
		}

		report, err := application.RunTests(ctx, analyzers.RunRequest{
			Project:    slug,
			SnapshotID: request.GetString("snapshot_id", ""),
			Plugins:    request.GetStringSlice("plugins", nil),
			Configs:    configs,
		})
		if err != nil {
			logger.Error().Err(err).Str("slug", slug).Msg("Test run failed")
			return errorResult("%v", err), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# Test run against snapshot %s\n\n", report.SnapshotID)
		for _, r := range report.Results {
			fmt.Fprintf(&b, "- **%s**: %s — %s\n", r.PluginName, r.Status, r.Summary)
		}
		if report.Promotion != nil {
			fmt.Fprintf(&b, "\nIssues: %d opened, %d reopened, %d resolved\n",
				len(report.Promotion.Opened), len(report.Promotion.Reopened), len(report.Promotion.Resolved))
		}
		return textResult(b.String()), nil
	}
}

// handleListIssues implements the list_issues tool
func handleListIssues(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := request.RequireString("slug")
		if err != nil || slug == "" {
			return errorResult("slug parameter is required"), nil
		}

		issues, err := application.ListIssues(slug,
			models.IssueStatus(request.GetString("status", "")),
			request.GetString("plugin", ""))
		if err != nil {
			return errorResult("%v", err), nil
		}
		if len(issues) == 0 {
			return textResult("No matching issues."), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "# Issues for %s\n\n", slug)
		for _, i := range issues {
			fmt.Fprintf(&b, "- **[%s]** %s (%s, %s, plugin %s)\n", i.ID, i.Title, i.Status, i.Priority, i.PluginName)
			for _, u := range i.AffectedURLs {
				fmt.Fprintf(&b, "  - %s\n", u)
			}
		}
		return textResult(b.String()), nil
	}
}
