package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/models"
)

// WebhookNotifier POSTs a JSON run summary to the configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger arbor.ILogger
}

// NewWebhookNotifier creates the webhook backend.
func NewWebhookNotifier(cfg common.WebhookConfig, logger arbor.ILogger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// webhookPayload is the wire format posted to the endpoint.
type webhookPayload struct {
	Project   string               `json:"project"`
	At        time.Time            `json:"at"`
	Results   []webhookResult      `json:"results"`
	Opened    []*models.Issue      `json:"opened_issues,omitempty"`
	Resolved  []*models.Issue      `json:"resolved_issues,omitempty"`
}

type webhookResult struct {
	Plugin  string              `json:"plugin"`
	Status  models.ResultStatus `json:"status"`
	Summary string              `json:"summary"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, project string, results []*models.TestResult, opened, resolved []*models.Issue) error {
	payload := webhookPayload{
		Project:  project,
		At:       time.Now().UTC(),
		Opened:   opened,
		Resolved: resolved,
	}
	for _, r := range results {
		payload.Results = append(payload.Results, webhookResult{
			Plugin:  r.PluginName,
			Status:  r.Status,
			Summary: r.Summary,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
