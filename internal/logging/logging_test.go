package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "json", &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("port", "/dev/ttyUSB0").Msg("port open")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "port open", entry["message"])
	assert.Equal(t, "/dev/ttyUSB0", entry["port"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "console", &buf)
	require.NoError(t, err)

	log.Debug().Msg("opening port")
	assert.Contains(t, buf.String(), "opening port")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewErrors(t *testing.T) {
	_, err := New("chatty", "console", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewEmptyLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("", "json", &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
