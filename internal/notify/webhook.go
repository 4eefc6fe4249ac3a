package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/microblog/internal/security"
)

// WebhookReporter はエラー通知をJSONでWebhookにPOSTする。
type WebhookReporter struct {
	client *http.Client
	url    string
}

type webhookPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// NewWebhookReporter はURLを検証し、SSRF対策済みのクライアントでWebhookReporterを生成する。
func NewWebhookReporter(rawURL string, timeout time.Duration) (*WebhookReporter, error) {
	if err := security.ValidateWebhookURL(rawURL); err != nil {
		return nil, err
	}
	return &WebhookReporter{client: security.NewWebhookClient(timeout), url: rawURL}, nil
}

// Report はWebhookに通知をPOSTする。2xx以外はエラーとする。
func (r *WebhookReporter) Report(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(webhookPayload{Subject: subject, Text: body})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
