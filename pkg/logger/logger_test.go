package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestLoggerUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("queue cycle", "mode", "pvp")
		Named("matchmaking").Debug("noop")
		Sync()
	})
}

func TestInit(t *testing.T) {
	Init("development", "debug")
	assert.True(t, L().Core().Enabled(zapcore.DebugLevel))

	Init("production", "warn")
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))
}
