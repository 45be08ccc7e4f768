// Package notify delivers the authorize URL to the operator when a provider
// needs interactive re-authorization.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/statusboard/internal/log"
	"github.com/hashicorp/go-retryablehttp"
)

// Notifier sends one message per authorization session.
type Notifier interface {
	NotifyAuthorization(ctx context.Context, provider, authorizeURL string) error
}

// Message is the provider-agnostic notification content
type Message struct {
	Title string
	Body  string
	URL   string
}

// AuthorizationMessage builds the text sent to the operator
func AuthorizationMessage(provider, authorizeURL string) Message {
	return Message{
		Title: fmt.Sprintf("Authorize %s", provider),
		Body:  fmt.Sprintf("The status board needs you to sign in to %s again.", provider),
		URL:   authorizeURL,
	}
}

// newRetryClient returns a client that retries transient failures a few
// times and reports attempts through our logger.
func newRetryClient(retries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.LogDebugWithFields("notify", "Retrying notification", map[string]any{
				"host":    req.URL.Host,
				"attempt": attempt,
			})
		}
	}
	return c
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyAuthorization(ctx context.Context, provider, authorizeURL string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAuthorization(ctx, provider, authorizeURL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes the URL to the structured log. It is the fallback when no
// push channel is configured.
type Log struct{}

func (Log) NotifyAuthorization(_ context.Context, provider, authorizeURL string) error {
	log.LogWarnWithFields("notify", "Authorization required, visit the URL to continue", map[string]any{
		"provider": provider,
		"url":      authorizeURL,
	})
	return nil
}
