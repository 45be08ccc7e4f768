package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultPushoverURL is the Pushover message API
const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover sends the authorize URL as a Pushover message with a tappable
// link.
type Pushover struct {
	Token    string
	User     string
	Endpoint string

	client *retryablehttp.Client
}

// NewPushover creates a Pushover notifier
func NewPushover(token, user string) (*Pushover, error) {
	if token == "" || user == "" {
		return nil, fmt.Errorf("pushover token and user are required")
	}
	return &Pushover{
		Token:    token,
		User:     user,
		Endpoint: DefaultPushoverURL,
		client:   newRetryClient(3),
	}, nil
}

type pushoverResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors"`
}

func (p *Pushover) NotifyAuthorization(ctx context.Context, provider, authorizeURL string) error {
	msg := AuthorizationMessage(provider, authorizeURL)

	form := url.Values{}
	form.Set("token", p.Token)
	form.Set("user", p.User)
	form.Set("title", msg.Title)
	form.Set("message", msg.Body)
	form.Set("url", msg.URL)
	form.Set("url_title", "Sign in")
	form.Set("priority", "1")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send pushover message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var pr pushoverResponse
	_ = json.Unmarshal(body, &pr)

	if resp.StatusCode != http.StatusOK || pr.Status != 1 {
		return fmt.Errorf("pushover rejected message: status %d %v", resp.StatusCode, pr.Errors)
	}
	return nil
}
