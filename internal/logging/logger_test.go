package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devhost/internal/config"
)

func TestNewLogger_JSONWithServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "info"})

	logger.Info().Str("site", "blog").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "devhost", line["service"])
	assert.Equal(t, "blog", line["site"])
	assert.Equal(t, "hello", line["message"])
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			logger := newLogger(&bytes.Buffer{}, &config.Config{LogLevel: tc.level})
			assert.Equal(t, tc.expected, logger.GetLevel())
		})
	}
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "info", LogFormat: "console"})

	logger.Info().Msg("console line")

	assert.Contains(t, buf.String(), "console line")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
