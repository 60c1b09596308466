package interactions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookMaxResponseBytes caps how much of a bot's reply we read.
const webhookMaxResponseBytes = 1 << 20

// WebhookClient delivers interaction payloads to bot webhook endpoints.
type WebhookClient struct {
	client *http.Client
}

// NewWebhookClient creates a client with the given per-request timeout.
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver POSTs the payload to url and decodes the bot's response. An empty
// 2xx body is a valid acknowledgement and returns a nil response. Non-2xx
// statuses are errors so the caller can retry.
func (c *WebhookClient) Deliver(ctx context.Context, url string, payload OutgoingPayload) (*BotResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, webhookMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var br BotResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return nil, fmt.Errorf("decode webhook response: %w", err)
	}
	return &br, nil
}
