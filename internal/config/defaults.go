package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Built-in provider names
const (
	ProviderSpotify = "spotify"
	ProviderTesla   = "tesla"
)

var providerDefaults = map[string]ProviderConfig{
	ProviderSpotify: {
		AuthorizeURL: "https://accounts.spotify.com/authorize",
		TokenURL:     "https://accounts.spotify.com/api/token",
		Scopes:       []string{"user-read-currently-playing", "user-read-playback-state"},
		Encoding:     "form",
		CallbackMode: "store",
		DataURL:      "https://api.spotify.com/v1/me/player/currently-playing",
	},
	ProviderTesla: {
		AuthorizeURL: "https://auth.tesla.com/oauth2/v3/authorize",
		TokenURL:     "https://auth.tesla.com/oauth2/v3/token",
		Scopes:       []string{"openid", "offline_access", "energy_device_data"},
		Encoding:     "json",
		CallbackMode: "exchange",
		DataURL:      "https://fleet-api.prd.na.vn.cloud.tesla.com/api/1/energy_sites/{siteId}/live_status",
	},
}

const (
	defaultAddr             = ":8080"
	defaultShutdownTimeout  = 30 * time.Second
	defaultPollAttempts     = 60
	defaultPollInterval     = time.Second
	defaultSessionTTL       = 10 * time.Minute
	defaultOnRefreshFailure = "reauthorize"
)

// ApplyDefaults fills every unset field that has a sensible default
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = StorageMemory
	}
	if cfg.Notifier.Kind == "" {
		cfg.Notifier.Kind = NotifierLog
	}

	a := &cfg.Authorization
	if a.PollAttempts == 0 {
		a.PollAttempts = defaultPollAttempts
	}
	if a.PollInterval == 0 {
		a.PollInterval = Duration(defaultPollInterval)
	}
	if a.SessionTTL == 0 {
		a.SessionTTL = Duration(defaultSessionTTL)
	}
	if a.OnRefreshFailure == "" {
		a.OnRefreshFailure = defaultOnRefreshFailure
	}

	baseURL := strings.TrimRight(string(cfg.Server.BaseURL), "/")
	for name, p := range cfg.Providers {
		if p == nil {
			continue
		}
		applyProviderDefaults(name, p, baseURL)
	}
}

func applyProviderDefaults(name string, p *ProviderConfig, baseURL string) {
	d := providerDefaults[name]

	if p.AuthorizeURL == "" {
		p.AuthorizeURL = d.AuthorizeURL
	}
	if p.TokenURL == "" {
		p.TokenURL = d.TokenURL
	}
	if len(p.Scopes) == 0 {
		p.Scopes = d.Scopes
	}
	if p.Encoding == "" {
		p.Encoding = d.Encoding
	}
	if p.Encoding == "" {
		p.Encoding = "form"
	}
	if p.CallbackMode == "" {
		p.CallbackMode = d.CallbackMode
	}
	if p.CallbackMode == "" {
		p.CallbackMode = "store"
	}
	if p.DataURL == "" {
		p.DataURL = d.DataURL
	}
	if p.RedirectURI == "" && baseURL != "" {
		if redirect, err := callbackURL(baseURL, name); err == nil {
			p.RedirectURI = Value(redirect)
		}
	}
}

// callbackURL is the redirect URI the server answers for provider under the
// public baseURL. A path prefix on baseURL is kept so the board can sit
// behind a reverse proxy mount.
func callbackURL(baseURL, provider string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URL %q is not absolute", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.JoinPath("oauth", "callback", provider).String(), nil
}
