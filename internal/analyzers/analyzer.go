// Package analyzers hosts the analysis plugins: discovery via a static
// registration table, per-plugin config validation, and the runner that
// drives selected analyzers against a sealed snapshot.
package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
	"github.com/sitewarden/sitewarden/internal/workspace"
)

// Config is the raw per-plugin configuration as supplied by the caller.
type Config map[string]interface{}

// ConfigField describes one accepted key of an analyzer's configuration.
type ConfigField struct {
	Type        string      `json:"type"` // "string", "bool", "int", "float", "map", "list"
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description"`
}

// Description presents an analyzer to callers: identity plus the config
// schema the host validates against.
type Description struct {
	Name       string                 `json:"name"`
	Summary    string                 `json:"summary"`
	ConfigSpec map[string]ConfigField `json:"config_spec,omitempty"`
}

// Analyzer is the plugin contract: one method to describe, one to execute.
// Analyzers are pure with respect to the snapshot: they read page content
// freely but never modify snapshot files, and they perform no network I/O.
type Analyzer interface {
	Describe() Description
	Analyze(ctx context.Context, snap *workspace.Snapshot, cfg Config) (*models.TestResult, error)
}

var structValidator = validator.New()

// DecodeConfig maps a raw Config onto an analyzer's typed config struct and
// validates it against the struct's declared constraints.
func DecodeConfig(cfg Config, out interface{}) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config not serialisable: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	if err := structValidator.Struct(out); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// ValidateConfig rejects keys an analyzer does not declare and enforces
// required fields. Type errors surface later through DecodeConfig.
func ValidateConfig(desc Description, cfg Config) error {
	for key := range cfg {
		if _, ok := desc.ConfigSpec[key]; !ok {
			return common.UsageError("plugin %q does not accept config key %q", desc.Name, key)
		}
	}
	for key, field := range desc.ConfigSpec {
		if field.Required {
			if _, ok := cfg[key]; !ok {
				return common.UsageError("plugin %q requires config key %q", desc.Name, key)
			}
		}
	}
	return nil
}

// newResult seeds a TestResult envelope for one invocation.
func newResult(plugin, snapshotID string, startedAt time.Time) *models.TestResult {
	return &models.TestResult{
		PluginName: plugin,
		SnapshotID: snapshotID,
		StartedAt:  startedAt,
		Details:    map[string]interface{}{},
	}
}

// statusFor derives the envelope status from the findings: fail when any
// high-severity finding exists, warning for anything else, pass when clean.
func statusFor(findings []models.Finding) models.ResultStatus {
	if len(findings) == 0 {
		return models.ResultPass
	}
	for _, f := range findings {
		if f.Severity == models.SeverityHigh {
			return models.ResultFail
		}
	}
	return models.ResultWarning
}
