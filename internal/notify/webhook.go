package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dgellow/statusboard/internal/ioutil"
	"github.com/hashicorp/go-retryablehttp"
)

// Webhook posts a JSON payload to an arbitrary endpoint.
type Webhook struct {
	Endpoint string
	Headers  map[string]string

	client *retryablehttp.Client
}

// NewWebhook creates a webhook notifier
func NewWebhook(endpoint string, headers map[string]string) (*Webhook, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	return &Webhook{
		Endpoint: endpoint,
		Headers:  headers,
		client:   newRetryClient(3),
	}, nil
}

type webhookPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	URL      string `json:"url"`
	Provider string `json:"provider"`
}

func (w *Webhook) NotifyAuthorization(ctx context.Context, provider, authorizeURL string) error {
	msg := AuthorizationMessage(provider, authorizeURL)

	body, err := json.Marshal(webhookPayload{
		Title:    msg.Title,
		Body:     msg.Body,
		URL:      msg.URL,
		Provider: provider,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, ioutil.Snippet(resp.Body, 512))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return nil
}
