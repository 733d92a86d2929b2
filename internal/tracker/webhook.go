package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veridocs/reviewctl/internal/resilience"
)

// WebhookTracker posts incidents as JSON to a generic webhook endpoint,
// retrying transient failures.
type WebhookTracker struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhookTracker creates a WebhookTracker posting to url.
func NewWebhookTracker(url string) *WebhookTracker {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("tracker", "file")
	return &WebhookTracker{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		retry:  cfg,
	}
}

// File posts the issue and returns any reference the endpoint responds with.
func (t *WebhookTracker) File(ctx context.Context, issue Issue) (string, error) {
	payload, err := json.Marshal(issue)
	if err != nil {
		return "", eris.Wrap(err, "tracker: marshal issue")
	}

	var ref string
	err = resilience.Do(ctx, t.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "tracker: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		var out struct {
			Ref string `json:"ref"`
			URL string `json:"url"`
		}
		if json.Unmarshal(body, &out) == nil {
			if out.URL != "" {
				ref = out.URL
			} else {
				ref = out.Ref
			}
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "tracker: file webhook incident")
	}
	return ref, nil
}
