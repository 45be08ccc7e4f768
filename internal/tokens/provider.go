package tokens

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// Encoding selects how token endpoint requests are serialized.
type Encoding string

const (
	EncodingForm Encoding = "form"
	EncodingJSON Encoding = "json"
)

// CallbackMode selects what the callback does with a valid code.
type CallbackMode string

const (
	// CallbackStore hands the code to a polling Orchestrator through the store.
	CallbackStore CallbackMode = "store"
	// CallbackExchange exchanges the code directly in the callback request.
	CallbackExchange CallbackMode = "exchange"
)

// Provider is the read-only OAuth configuration for one upstream API.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	Encoding     Encoding
	CallbackMode CallbackMode
	// AuthParams are extra query parameters appended to the authorize URL.
	AuthParams map[string]string
}

// Validate reports the first missing field as a MissingConfiguration error.
func (p *Provider) Validate() error {
	missing := func(field string) error {
		return newError(KindMissingConfiguration, p.Name, "validate", fmt.Errorf("%s is required", field))
	}

	switch {
	case p.Name == "":
		return missing("name")
	case p.ClientID == "":
		return missing("clientId")
	case p.ClientSecret == "":
		return missing("clientSecret")
	case p.AuthorizeURL == "":
		return missing("authorizeUrl")
	case p.TokenURL == "":
		return missing("tokenUrl")
	case p.RedirectURI == "":
		return missing("redirectUri")
	}

	switch p.Encoding {
	case EncodingForm, EncodingJSON:
	default:
		return newError(KindMissingConfiguration, p.Name, "validate", fmt.Errorf("unknown token encoding %q", p.Encoding))
	}
	switch p.CallbackMode {
	case CallbackStore, CallbackExchange:
	default:
		return newError(KindMissingConfiguration, p.Name, "validate", fmt.Errorf("unknown callback mode %q", p.CallbackMode))
	}

	for _, raw := range []string{p.AuthorizeURL, p.TokenURL, p.RedirectURI} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return newError(KindMissingConfiguration, p.Name, "validate", fmt.Errorf("invalid URL %q", raw))
		}
	}
	return nil
}

// Scope is the space-delimited scope string sent to both endpoints
func (p *Provider) Scope() string {
	return strings.Join(p.Scopes, " ")
}

func (p *Provider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthorizeURL,
			TokenURL: p.TokenURL,
		},
		RedirectURL: p.RedirectURI,
		Scopes:      p.Scopes,
	}
}

// AuthCodeURL builds the authorize URL carrying client_id, redirect_uri,
// response_type=code, scope and state.
func (p *Provider) AuthCodeURL(state string) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(p.AuthParams))
	for k, v := range p.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return p.oauth2Config().AuthCodeURL(state, opts...)
}
