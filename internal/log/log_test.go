package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLogLevel("info") })

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, "debug", GetLogLevel())

	require.NoError(t, SetLogLevel("TRACE"))
	assert.Equal(t, "trace", GetLogLevel())

	assert.Error(t, SetLogLevel("loud"))
	assert.Equal(t, "trace", GetLogLevel(), "invalid level must not change the current one")
}

func TestLogWithFieldsWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	LogInfoWithFields("tokens", "Token refreshed", map[string]any{"provider": "spotify"})

	out := buf.String()
	assert.Contains(t, out, "Token refreshed")
	assert.Contains(t, out, "component=tokens")
	assert.Contains(t, out, "provider=spotify")
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "", Fingerprint(""))
	assert.Equal(t, "*****", Fingerprint("short"))
	assert.Equal(t, "BQDx…9z", Fingerprint("BQDxabcdefgh9z"))
}
