package monitoring

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := *Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	Logf("hello %s", "world")
	assert.Contains(t, buf.String(), `"message":"hello world"`)

	buf.Reset()
	c := Component("pace")
	c.Info().Msg("tick")
	assert.Contains(t, buf.String(), `"component":"pace"`)

	buf.Reset()
	Mute()
	Logf("silent")
	assert.Empty(t, buf.String())
}

func TestSetLogger_Console(t *testing.T) {
	original := *Logger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewConsoleLogger(&buf))
	Logf("console %d", 7)
	assert.Contains(t, buf.String(), "console 7")
}

func TestLevelFromEnv(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":         zerolog.InfoLevel,
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"off":      zerolog.Disabled,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
	}
	for raw, want := range tests {
		t.Setenv(EnvLogLevel, raw)
		assert.Equal(t, want, LevelFromEnv(), "raw=%q", raw)
	}
}
