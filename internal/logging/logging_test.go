package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BRO3886/go-formpdf/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
	}
	for level, want := range cases {
		log, err := logging.New(level, "json")
		require.NoError(t, err, "level %q", level)
		assert.True(t, log.Core().Enabled(want), "level %q should enable %v", level, want)
		if want > zapcore.DebugLevel {
			assert.False(t, log.Core().Enabled(want-1), "level %q should not enable %v", level, want-1)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", "unknown"} {
		log, err := logging.New("info", format)
		require.NoError(t, err, "format %q", format)
		require.NotNil(t, log)
	}
}
