package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/statusboard/internal/ioutil"
	"golang.org/x/oauth2"
)

const maxTokenResponseBytes = 1 << 20

// tokenResponse is the subset of RFC 6749 §5.1 both providers return
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// oauthErrorResponse is the RFC 6749 §5.2 error body
type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ParseTokenResponse decodes a token endpoint body. Expiry is left zero;
// ExpiresIn carries the raw lifetime so the caller can apply its own clock
// and safety margin.
func ParseTokenResponse(body []byte) (*oauth2.Token, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	if resp.ExpiresIn < 0 {
		return nil, fmt.Errorf("token response has negative expires_in")
	}

	token := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
	}
	if resp.Scope != "" {
		token = token.WithExtra(map[string]any{
			"scope": strings.Split(resp.Scope, " "),
		})
	}
	return token, nil
}

// tokenEndpoint posts grant requests in the provider's encoding.
type tokenEndpoint struct {
	provider   *Provider
	httpClient *http.Client
}

func (e *tokenEndpoint) newRequest(ctx context.Context, params map[string]string) (*http.Request, error) {
	var body io.Reader
	var contentType string

	switch e.provider.Encoding {
	case EncodingJSON:
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	default:
		form := url.Values{}
		for k, v := range params {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.provider.TokenURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// grant performs one token request. An answer the provider refused or that
// cannot be parsed is ProviderRejected; no answer at all is
// ProviderUnavailable.
func (e *tokenEndpoint) grant(ctx context.Context, op string, params map[string]string) (*oauth2.Token, error) {
	p := e.provider
	params["client_id"] = p.ClientID
	params["client_secret"] = p.ClientSecret
	if scope := p.Scope(); scope != "" {
		params["scope"] = scope
	}

	req, err := e.newRequest(ctx, params)
	if err != nil {
		return nil, rejected(p.Name, op, "building token request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(p.Name, op, "token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, unavailable(p.Name, op, "reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oerr oauthErrorResponse
		if json.Unmarshal(body, &oerr) == nil && oerr.Error != "" {
			return nil, rejected(p.Name, op, "token endpoint returned %d: %s %s", resp.StatusCode, oerr.Error, oerr.ErrorDescription)
		}
		if snippet := ioutil.SnippetBytes(body, 200); snippet != "" {
			return nil, rejected(p.Name, op, "token endpoint returned %d: %s", resp.StatusCode, snippet)
		}
		return nil, rejected(p.Name, op, "token endpoint returned %d", resp.StatusCode)
	}

	token, err := ParseTokenResponse(body)
	if err != nil {
		return nil, rejected(p.Name, op, "%w", err)
	}
	return token, nil
}

func (e *tokenEndpoint) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return e.grant(ctx, "exchange", map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": e.provider.RedirectURI,
	})
}

func (e *tokenEndpoint) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return e.grant(ctx, "refresh", map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
}

// recordFromToken converts a token response into a Record issued at now.
// previousRefresh is kept when the response omits a refresh token.
func recordFromToken(token *oauth2.Token, now time.Time, previousRefresh string) *Record {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &Record{
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    ExpiresAt(now, time.Duration(token.ExpiresIn)*time.Second),
	}
}
