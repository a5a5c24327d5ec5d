package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Crawler   CrawlerConfig   `toml:"crawler"`
	Render    RenderConfig    `toml:"render"`
	Tests     TestsConfig     `toml:"tests"`
	Server    ServerConfig    `toml:"server"`
	Logging   LoggingConfig   `toml:"logging"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Notify    NotifyConfig    `toml:"notify"`

	// Raw per-analyzer tables, keyed by analyzer name. Decoded by the plugin
	// host against each analyzer's declared config struct.
	Analyzers map[string]map[string]interface{} `toml:"analyzers"`
}

// WorkspaceConfig locates the on-disk project workspace
type WorkspaceConfig struct {
	Root string `toml:"root" validate:"required"` // Directory holding projects/<slug>/...
}

// CrawlerConfig contains crawl limits and politeness settings
type CrawlerConfig struct {
	MaxPages           int           `toml:"max_pages" validate:"min=0,max=10000"` // Crawl admission ceiling (hard cap 10000)
	MaxDepth           int           `toml:"max_depth" validate:"min=-1"`          // Link-depth ceiling, -1 = unbounded
	PerHostConcurrency int           `toml:"per_host_concurrency" validate:"min=1"`
	GlobalConcurrency  int           `toml:"global_concurrency" validate:"min=1"`
	PerPageTimeout     time.Duration `toml:"per_page_timeout"`
	OverallTimeout     time.Duration `toml:"overall_timeout"`
	RespectRobots      bool          `toml:"respect_robots"`
	IncludeSubdomains  bool          `toml:"include_subdomains"`
	IncludePatterns    []string      `toml:"include_patterns"` // Path globs, empty = allow all
	ExcludePatterns    []string      `toml:"exclude_patterns"`
	UserAgent          string        `toml:"user_agent"`
	UserAgentRotation  bool          `toml:"user_agent_rotation"` // Random UA per request via colly extensions
	FrontierCeiling    int           `toml:"frontier_ceiling"`    // Drop discovered links above this many queued URLs
	TrackingParams     []string      `toml:"tracking_params"`     // Query params stripped during normalisation
}

// RenderConfig controls the headless browser pool for JS rendering
type RenderConfig struct {
	Enabled      bool          `toml:"enabled"`
	MaxInstances int           `toml:"max_instances" validate:"min=0,max=20"`
	Headless     bool          `toml:"headless"`
	WaitTime     time.Duration `toml:"wait_time"` // Settle time after navigation before DOM capture
}

// TestsConfig controls the analyzer runner
type TestsConfig struct {
	PluginTimeout time.Duration `toml:"plugin_timeout"`                     // Per-analyzer budget, default 300s
	Parallelism   int           `toml:"parallelism" validate:"min=1,max=8"` // 1 = sequential (default)
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"min=0,max=65535"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output"`                                       // "stdout", "file"
}

// SchedulerConfig holds cron-driven recurring runs
type SchedulerConfig struct {
	Enabled bool           `toml:"enabled"`
	Jobs    []ScheduledJob `toml:"jobs"`
}

// ScheduledJob crawls a project and runs analyzers on a cron schedule
type ScheduledJob struct {
	Project   string   `toml:"project" validate:"required"`
	Schedule  string   `toml:"schedule" validate:"required"` // Cron expression
	Analyzers []string `toml:"analyzers"`                    // Empty = all registered
}

// NotifyConfig fans out run summaries to the configured backends
type NotifyConfig struct {
	Console bool          `toml:"console"`
	Webhook WebhookConfig `toml:"webhook"`
	Email   EmailConfig   `toml:"email"`
}

type WebhookConfig struct {
	URL string `toml:"url" validate:"omitempty,url"`
}

type EmailConfig struct {
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port" validate:"min=0,max=65535"`
	From     string `toml:"from" validate:"omitempty,email"`
	To       string `toml:"to" validate:"omitempty,email"`
}

// DefaultConfig returns the configuration defaults applied before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root: "./workspace",
		},
		Crawler: CrawlerConfig{
			MaxPages:           1000,
			MaxDepth:           -1,
			PerHostConcurrency: 5,
			GlobalConcurrency:  10,
			PerPageTimeout:     60 * time.Second,
			OverallTimeout:     4 * time.Hour,
			RespectRobots:      true,
			IncludeSubdomains:  true,
			UserAgent:          "sitewarden/" + Version,
			FrontierCeiling:    100000,
			TrackingParams: []string{
				"utm_source", "utm_medium", "utm_campaign", "utm_term",
				"utm_content", "fbclid", "gclid", "msclkid", "mc_cid", "mc_eid",
			},
		},
		Render: RenderConfig{
			Enabled:      false,
			MaxInstances: 2,
			Headless:     true,
			WaitTime:     2 * time.Second,
		},
		Tests: TestsConfig{
			PluginTimeout: 300 * time.Second,
			Parallelism:   1,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8765,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Notify: NotifyConfig{
			Console: true,
		},
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults, then
// applies SITEWARDEN_* environment overrides and validates the result.
// A missing file is not an error; defaults apply.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its declared constraints and
// clamps the crawl ceiling.
func (c *Config) Validate() error {
	if c.Crawler.MaxPages > 10000 {
		c.Crawler.MaxPages = 10000
	}
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides maps SITEWARDEN_* environment variables onto the config.
// Environment wins over file values; CLI flags are applied later and win over
// everything.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SITEWARDEN_WORKSPACE"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("SITEWARDEN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SITEWARDEN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SITEWARDEN_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxPages = n
		}
	}
	if v := os.Getenv("SITEWARDEN_RESPECT_ROBOTS"); v != "" {
		cfg.Crawler.RespectRobots = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SITEWARDEN_USER_AGENT"); v != "" {
		cfg.Crawler.UserAgent = v
	}
}
