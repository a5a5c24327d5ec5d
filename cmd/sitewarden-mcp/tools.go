package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListProjectsTool returns the list_projects tool definition
func createListProjectsTool() mcp.Tool {
	return mcp.NewTool("list_projects",
		mcp.WithDescription("List every tracked website project in the workspace"),
	)
}

// createCreateProjectTool returns the create_project tool definition
func createCreateProjectTool() mcp.Tool {
	return mcp.NewTool("create_project",
		mcp.WithDescription("Register a new website project for analysis"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Root URL of the website (e.g. https://example.com)"),
		),
	)
}

// createCrawlSiteTool returns the crawl_site tool definition
func createCrawlSiteTool() mcp.Tool {
	return mcp.NewTool("crawl_site",
		mcp.WithDescription("Crawl a project's website and capture an immutable snapshot"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("Project slug (from list_projects)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Crawl admission ceiling (default from config, hard cap 10000)"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Link-depth ceiling (-1 = unbounded)"),
		),
	)
}

// createListPluginsTool returns the list_plugins tool definition
func createListPluginsTool() mcp.Tool {
	return mcp.NewTool("list_plugins",
		mcp.WithDescription("List the available analysis plugins and their configuration schemas"),
	)
}

// createRunTestsTool returns the run_tests tool definition
func createRunTestsTool() mcp.Tool {
	return mcp.NewTool("run_tests",
		mcp.WithDescription("Run analysis plugins against a project's snapshot and update the issue register"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithString("snapshot_id",
			mcp.Description("Snapshot id (default: latest sealed)"),
		),
		mcp.WithArray("plugins",
			mcp.WithStringItems(),
			mcp.Description("Plugin names to run (default: all registered)"),
		),
		mcp.WithString("configs_json",
			mcp.Description("Per-plugin configuration as a JSON object keyed by plugin name"),
		),
	)
}

// createListIssuesTool returns the list_issues tool definition
func createListIssuesTool() mcp.Tool {
	return mcp.NewTool("list_issues",
		mcp.WithDescription("List a project's tracked issues, optionally filtered"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithString("status",
			mcp.Description("Filter: open, investigating, fixed, verified"),
		),
		mcp.WithString("plugin",
			mcp.Description("Filter by plugin name"),
		),
	)
}
