package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	zl, err := NewLogger(WithLogLevel("loud"))
	assert.Error(t, err)
	assert.Nil(t, zl)
}

func TestNewLogger_WritesJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")

	zl, err := NewLogger(WithLogLevel("warn"), WithOutputPaths(out))
	require.NoError(t, err)

	zl.Info("dropped")
	zl.Warn("kept")
	require.NoError(t, zl.Sync())

	b, err := os.ReadFile(out)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "warn", rec["level"])
	assert.Contains(t, rec, "ts")
}

func TestMust_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Must(NewLogger(WithLogLevel("nope")))
	})
	assert.NotPanics(t, func() {
		NewAppLogger("test", WithOutputPaths(filepath.Join(t.TempDir(), "x.log")))
	})
}
