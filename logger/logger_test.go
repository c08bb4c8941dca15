package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warning ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel)
	l.Debug().Msg("hidden")
	l.Info().Str("provider", "openai").Msg("Creating provider instance")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Creating provider instance", entry["message"])
	assert.Equal(t, "openai", entry["provider"])
	assert.Equal(t, "llmgate", entry["service"])
	assert.Contains(t, entry, "time")
}

func TestInitWithLevelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llmgate.log")
	l, err := InitWithLevel("info", path, false)
	require.NoError(t, err)
	l.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)

	_, err = InitWithLevel("info", filepath.Join(t.TempDir(), "missing", "x.log"), false)
	assert.Error(t, err)
}
