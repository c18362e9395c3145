package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := NewLogger(
		WithLevel("info"),
		WithEncoding("json"),
		WithOutputPaths([]string{path}),
		WithInitialFields(map[string]interface{}{"service": "test"}),
	)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Named("intake").Info("analysis queued", Int64("intakeId", 7))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "intake", entry["logger"])
	assert.Equal(t, "analysis queued", entry["message"])
	assert.Equal(t, float64(7), entry["intakeId"])
	assert.Equal(t, "test", entry["service"])
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stderr"}))
	assert.ErrorContains(t, err, "log level")
}

func TestFromContextAddsIdentity(t *testing.T) {
	log := NewTestLogger()
	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), 42)

	FromContext(ctx, log).Info("uploaded")

	entries := log.GetEntries()
	require.Len(t, entries, 1)
	keys := make([]string, 0, len(entries[0].Fields))
	for _, f := range entries[0].Fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"request_id", "user_id"}, keys)
}

func TestFromContextWithoutValuesReturnsSameLogger(t *testing.T) {
	log := NewTestLogger()
	assert.Same(t, log, FromContext(context.Background(), log))
}

func TestTestLoggerChildrenShareEntries(t *testing.T) {
	log := NewTestLogger()
	log.Named("worker").With(String("queue", "default")).Warn("lease held")

	assert.True(t, log.HasMessage("WARN", "lease"))
	entries := log.GetEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "worker", entries[0].Logger)

	log.Clear()
	assert.Empty(t, log.GetEntries())
}
