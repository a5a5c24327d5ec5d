package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/sitewarden/sitewarden/internal/app"
	"github.com/sitewarden/sitewarden/internal/common"
)

func main() {
	configPath := os.Getenv("SITEWARDEN_CONFIG")
	if configPath == "" {
		configPath = "sitewarden.toml"
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logging: anything chatty on stdio corrupts the MCP transport.
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"sitewarden",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createListProjectsTool(), handleListProjects(application, logger))
	mcpServer.AddTool(createCreateProjectTool(), handleCreateProject(application, logger))
	mcpServer.AddTool(createCrawlSiteTool(), handleCrawlSite(application, logger))
	mcpServer.AddTool(createListPluginsTool(), handleListPlugins(application))
	mcpServer.AddTool(createRunTestsTool(), handleRunTests(application, logger))
	mcpServer.AddTool(createListIssuesTool(), handleListIssues(application, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
