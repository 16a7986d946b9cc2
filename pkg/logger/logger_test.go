package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestJSONOutput_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", "json", &buf)

	l.Error("catalog insert failed", errors.New("boom"), "record_id", "r1", "attempt", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "catalog insert failed", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "r1", entry["record_id"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "json", &buf)

	l.Info("hidden")
	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown", "dangling")
	assert.True(t, strings.Contains(buf.String(), `"dangling":null`))
}

func TestWith_CarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json", &buf).With("job_id", "j-1")

	l.Info("claimed")
	assert.Contains(t, buf.String(), `"job_id":"j-1"`)
}
