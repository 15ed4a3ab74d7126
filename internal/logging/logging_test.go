package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"nonsense": zerolog.WarnLevel,
		"":         zerolog.WarnLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")

	log.Debug().Uint16("id", 7).Msg("creature")
	log.Trace().Msg("dropped")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "creature", entry["message"])
	assert.Equal(t, float64(7), entry["id"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "console")

	log.Info().Msg("hidden")
	log.Warn().Str("library", "Creature.klb").Msg("library not found")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "library not found")
	assert.Contains(t, out, "library=Creature.klb")
}
