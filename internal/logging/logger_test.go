package logging

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "production", "info")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("tenant_id", "t1").Msg("visible")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, ServiceName, line["service"])
	assert.Equal(t, "t1", line["tenant_id"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, " LOCAL ", "debug")
	require.NoError(t, err)

	logger.Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewWithWriter_Levels(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{level: "debug", expected: zerolog.DebugLevel},
		{level: " WARN ", expected: zerolog.WarnLevel},
		{level: "", expected: zerolog.InfoLevel},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewWithWriter(&bytes.Buffer{}, "production", tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}
