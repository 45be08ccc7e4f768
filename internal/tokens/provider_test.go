package tokens

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderValidate(t *testing.T) {
	valid := testProvider("https://accounts.example.com/api/token")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Provider)
		want   string
	}{
		{"no client id", func(p *Provider) { p.ClientID = "" }, "clientId is required"},
		{"no secret", func(p *Provider) { p.ClientSecret = "" }, "clientSecret is required"},
		{"no token url", func(p *Provider) { p.TokenURL = "" }, "tokenUrl is required"},
		{"no redirect", func(p *Provider) { p.RedirectURI = "" }, "redirectUri is required"},
		{"bad encoding", func(p *Provider) { p.Encoding = "xml" }, "unknown token encoding"},
		{"bad mode", func(p *Provider) { p.CallbackMode = "poll" }, "unknown callback mode"},
		{"relative url", func(p *Provider) { p.TokenURL = "/token" }, "invalid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingConfiguration))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	p := testProvider("https://accounts.example.com/api/token")
	p.AuthParams = map[string]string{"prompt_missing_scopes": "true"}

	u, err := url.Parse(p.AuthCodeURL("s1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.example.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://board.example.com/oauth/callback/spotify", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "user-read-currently-playing user-read-playback-state", q.Get("scope"))
	assert.Equal(t, "s1", q.Get("state"))
	assert.Equal(t, "true", q.Get("prompt_missing_scopes"))
}
