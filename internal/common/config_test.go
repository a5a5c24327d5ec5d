package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper - write a config file into a temp dir
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitewarden.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "./workspace", cfg.Workspace.Root)
	assert.Equal(t, 1000, cfg.Crawler.MaxPages)
	assert.Equal(t, -1, cfg.Crawler.MaxDepth)
	assert.True(t, cfg.Crawler.RespectRobots)
	assert.Contains(t, cfg.Crawler.TrackingParams, "utm_source")
	assert.Contains(t, cfg.Crawler.TrackingParams, "fbclid")
	assert.False(t, cfg.Render.Enabled)
	assert.Equal(t, 300*time.Second, cfg.Tests.PluginTimeout)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Notify.Console)

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[workspace]
root = "/var/lib/sitewarden"

[crawler]
max_pages = 250
per_page_timeout = "30s"
exclude_patterns = ["/private/*"]

[server]
port = 9000

[analyzers.pattern-scanner]
patterns = ["TODO"]

[notify.webhook]
url = "https://hooks.example.com/run"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sitewarden", cfg.Workspace.Root)
	assert.Equal(t, 250, cfg.Crawler.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Crawler.PerPageTimeout)
	assert.Equal(t, []string{"/private/*"}, cfg.Crawler.ExcludePatterns)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com/run", cfg.Notify.Webhook.URL)

	// Untouched sections keep their defaults.
	assert.Equal(t, -1, cfg.Crawler.MaxDepth)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Analyzer tables pass through untyped for the plugin host.
	require.Contains(t, cfg.Analyzers, "pattern-scanner")
	assert.Contains(t, cfg.Analyzers["pattern-scanner"], "patterns")
}

func TestLoadFromFileMissingIsNotAnError(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Crawler.MaxPages)
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := writeConfig(t, "this is not toml ===")
	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[workspace]
root = "/from/file"

[crawler]
max_pages = 250
`)
	t.Setenv("SITEWARDEN_WORKSPACE", "/from/env")
	t.Setenv("SITEWARDEN_MAX_PAGES", "42")
	t.Setenv("SITEWARDEN_LOG_LEVEL", "debug")
	t.Setenv("SITEWARDEN_RESPECT_ROBOTS", "false")
	t.Setenv("SITEWARDEN_USER_AGENT", "custom-agent/1.0")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Workspace.Root, "environment wins over file")
	assert.Equal(t, 42, cfg.Crawler.MaxPages)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, "custom-agent/1.0", cfg.Crawler.UserAgent)
}

func TestValidateClampsMaxPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawler.MaxPages = 50000
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10000, cfg.Crawler.MaxPages, "hard cap on the crawl ceiling")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty workspace root", mutate: func(c *Config) { c.Workspace.Root = "" }},
		{name: "zero per-host concurrency", mutate: func(c *Config) { c.Crawler.PerHostConcurrency = 0 }},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
		{name: "bad webhook url", mutate: func(c *Config) { c.Notify.Webhook.URL = "not a url" }},
		{name: "bad notify email", mutate: func(c *Config) { c.Notify.Email.To = "not-an-address" }},
		{name: "scheduled job without schedule", mutate: func(c *Config) {
			c.Scheduler.Jobs = []ScheduledJob{{Project: "example-com"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
