package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Version: SupportedVersion,
		Server:  ServerConfig{BaseURL: "https://board.example.com"},
		Providers: map[string]*ProviderConfig{
			"spotify": {ClientID: "id", ClientSecret: "secret"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError string
	}{
		{"relative base URL", func(c *Config) { c.Server.BaseURL = "board" }, "not an absolute URL"},
		{"redis without addr", func(c *Config) { c.Storage.Kind = StorageRedis }, "redisAddr is required"},
		{"s3 without bucket", func(c *Config) { c.Storage.Kind = StorageS3; c.Storage.S3Endpoint = "minio:9000" }, "s3Bucket are required"},
		{"firestore without project", func(c *Config) { c.Storage.Kind = StorageFirestore }, "gcpProject is required"},
		{"sqlite without path", func(c *Config) { c.Storage.Kind = StorageSQLite }, "path is required"},
		{"short encryption key", func(c *Config) { c.Storage.EncryptionKey = "short" }, "exactly 32 characters"},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "etcd" }, "invalid storage kind"},
		{"pushover without user", func(c *Config) { c.Notifier.Kind = NotifierPushover; c.Notifier.PushoverToken = "t" }, "pushoverUser are required"},
		{"webhook without url", func(c *Config) { c.Notifier.Kind = NotifierWebhook }, "webhookUrl"},
		{"bad failure policy", func(c *Config) { c.Authorization.OnRefreshFailure = "retry" }, "onRefreshFailure"},
		{"bad encoding", func(c *Config) { c.Providers["spotify"].Encoding = "xml" }, "encoding must be form or json"},
		{"bad callback mode", func(c *Config) { c.Providers["spotify"].CallbackMode = "poll" }, "callbackMode must be"},
		{"custom provider without urls", func(c *Config) {
			c.Providers["custom"] = &ProviderConfig{ClientID: "id", ClientSecret: "s", Encoding: "form", CallbackMode: "store", RedirectURI: "https://b/cb"}
		}, "authorizeUrl is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
	  "version": "v1",
	  "server": {"baseURL": "https://board.example.com", "addr": "${PORT}"},
	  "storage": {"kind": "filesystem", "path": "/data"},
	  "providers": {
	    "spotify": {"clientId": "id"},
	    "custom": {"clientId": "id", "clientSecret": {"$env": "X"}}
	  }
	}`)

	result, err := ValidateFile(path)
	require.NoError(t, err)
	assert.False(t, result.IsValid())

	errPaths := map[string]bool{}
	for _, e := range result.Errors {
		errPaths[e.Path] = true
	}
	assert.True(t, errPaths["providers.spotify.clientSecret"])
	assert.True(t, errPaths["providers.custom.authorizeUrl"])
	assert.True(t, errPaths["providers.custom.tokenUrl"])

	warnPaths := map[string]bool{}
	for _, w := range result.Warnings {
		warnPaths[w.Path] = true
	}
	assert.True(t, warnPaths["server.addr"], "bash-style syntax is flagged")
	assert.True(t, warnPaths["storage.encryptionKey"])
}

func TestValidateFileNeedsNoEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
version: v1
server:
  baseURL: https://board.example.com
storage:
  kind: memory
providers:
  spotify:
    clientId:
      $env: UNSET_IN_TESTS_ID
    clientSecret:
      $env: UNSET_IN_TESTS_SECRET
`)

	result, err := ValidateFile(path)
	require.NoError(t, err)
	assert.True(t, result.IsValid(), "%v", result.Errors)
}
