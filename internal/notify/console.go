package notify

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/models"
)

// ConsoleNotifier writes the run summary through the structured logger.
type ConsoleNotifier struct {
	logger arbor.ILogger
}

// NewConsoleNotifier creates the console backend.
func NewConsoleNotifier(logger arbor.ILogger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

func (c *ConsoleNotifier) Name() string { return "console" }

func (c *ConsoleNotifier) Notify(ctx context.Context, project string, results []*models.TestResult, opened, resolved []*models.Issue) error {
	for _, r := range results {
		c.logger.Info().
			Str("project", project).
			Str("plugin", r.PluginName).
			Str("status", string(r.Status)).
			Msg(r.Summary)
	}
	c.logger.Info().
		Str("project", project).
		Int("opened", len(opened)).
		Int("resolved", len(resolved)).
		Msg("Issue register updated by run")
	return nil
}
