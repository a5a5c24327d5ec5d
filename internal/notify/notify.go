// Package notify delivers test-run summaries to the configured backends:
// console, webhook, and email. Delivery failures are logged, never fatal.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/interfaces"
	"github.com/sitewarden/sitewarden/internal/models"
)

// Manager fans a run summary out to every configured notifier.
type Manager struct {
	notifiers []interfaces.Notifier
	logger    arbor.ILogger
}

// NewManager assembles the notifier set from configuration.
func NewManager(cfg common.NotifyConfig, logger arbor.ILogger) *Manager {
	m := &Manager{logger: logger}
	if cfg.Console {
		m.notifiers = append(m.notifiers, NewConsoleNotifier(logger))
	}
	if cfg.Webhook.URL != "" {
		m.notifiers = append(m.notifiers, NewWebhookNotifier(cfg.Webhook, logger))
	}
	if cfg.Email.SMTPHost != "" && cfg.Email.To != "" {
		m.notifiers = append(m.notifiers, NewEmailNotifier(cfg.Email, logger))
	}
	return m
}

// Add registers an extra notifier. Used by tests and by callers that inject
// their own backends.
func (m *Manager) Add(n interfaces.Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// NotifyRun sends the run summary through every backend. Each backend gets
// its chance even when an earlier one fails.
func (m *Manager) NotifyRun(ctx context.Context, project string, results []*models.TestResult, opened, resolved []*models.Issue) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, project, results, opened, resolved); err != nil {
			m.logger.Warn().Err(err).Str("notifier", n.Name()).Str("project", project).Msg("Notification failed")
		}
	}
}

// summaryText renders the shared plain-text body used by console and email.
func summaryText(project string, results []*models.TestResult, opened, resolved []*models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test run for project %s\n\n", project)
	for _, r := range results {
		fmt.Fprintf(&b, "  %-20s %-8s %s\n", r.PluginName, r.Status, r.Summary)
	}
	if len(opened) > 0 {
		fmt.Fprintf(&b, "\nNew issues (%d):\n", len(opened))
		for _, i := range opened {
			fmt.Fprintf(&b, "  [%s] %s (%s)\n", i.ID, i.Title, i.Priority)
		}
	}
	if len(resolved) > 0 {
		fmt.Fprintf(&b, "\nResolved issues (%d):\n", len(resolved))
		for _, i := range resolved {
			fmt.Fprintf(&b, "  [%s] %s\n", i.ID, i.Title)
		}
	}
	return b.String()
}
