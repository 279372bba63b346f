package incidents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"civicwatch/core/utils"
)

type Event struct {
	Type       string   `json:"type"`
	IncidentID string   `json:"incident_id"`
	Recipients []string `json:"recipients,omitempty"`
}

// Dispatcher delivers notifications. Implementations must not block
// the orchestrator's success path; the service invokes them from a
// detached goroutine.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger *utils.Logger
}

func NewWebhookDispatcher(url string, timeout time.Duration, logger *utils.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDispatcher{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (d *WebhookDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil || d.url == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook: status %d", resp.StatusCode)
	}
	return nil
}
