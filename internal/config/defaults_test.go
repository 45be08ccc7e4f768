package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"bare host", "https://board.example.com", "https://board.example.com/oauth/callback/tesla"},
		{"trailing slash", "https://board.example.com/", "https://board.example.com/oauth/callback/tesla"},
		{"path prefix", "https://home.example.com/board", "https://home.example.com/board/oauth/callback/tesla"},
		{"port and query", "http://localhost:8080/?debug=1", "http://localhost:8080/oauth/callback/tesla"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := callbackURL(tt.baseURL, ProviderTesla)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := callbackURL("board.example.com", ProviderTesla)
	assert.Error(t, err)
}

func TestExplicitRedirectURIIsKept(t *testing.T) {
	p := &ProviderConfig{RedirectURI: "https://tunnel.example.net/cb"}
	applyProviderDefaults(ProviderSpotify, p, "https://board.example.com")
	assert.Equal(t, Value("https://tunnel.example.net/cb"), p.RedirectURI)
	assert.Equal(t, "https://accounts.spotify.com/api/token", p.TokenURL)
}
