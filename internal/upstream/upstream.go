// Package upstream fetches the device payloads from the provider data APIs
// using an access token supplied by the token manager.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgellow/statusboard/internal/ioutil"
	"golang.org/x/oauth2"
)

// ErrUnauthorized means the data endpoint rejected the access token. The
// caller should invalidate the cached token and try once more.
var ErrUnauthorized = errors.New("upstream rejected access token")

const maxBodyBytes = 1 << 20

// StatusError is returned for any other non-2xx answer
type StatusError struct {
	Endpoint   string
	StatusCode int
	// Body is the start of the response body, for logs
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Fetcher retrieves one compact payload. A nil payload with a nil error
// means there is nothing to show.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string) (any, error)
}

// client issues bearer-authenticated GETs through an oauth2 transport
type client struct {
	base *http.Client
}

func newClient(base *http.Client) client {
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	return client{base: base}
}

// getJSON decodes the body into v and reports whether there was a body.
func (c client) getJSON(ctx context.Context, endpoint, accessToken string, v any) (bool, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, ErrUnauthorized
	case resp.StatusCode == http.StatusNoContent:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       ioutil.Snippet(resp.Body, 256),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if len(body) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return true, nil
}
