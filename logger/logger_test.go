package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			if err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if Logger == nil {
				t.Fatal("Initialize() did not set global Logger")
			}
			if JSONOutput != tt.jsonOutput {
				t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
			}

			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestSetVerbosity(t *testing.T) {
	defer SetVerbosity(VerbosityInfo)

	SetVerbosity(VerbosityUser)
	assert.Equal(t, zapcore.WarnLevel, Level())

	SetVerbosity(VerbosityDebug)
	assert.Equal(t, zapcore.DebugLevel, Level())
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
}

func TestShouldOutput(t *testing.T) {
	assert.True(t, ShouldOutput(VerbosityUser, OutputResults))
	assert.False(t, ShouldOutput(VerbosityUser, OutputProgress))
	assert.True(t, ShouldOutput(VerbosityInfo, OutputProgress))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputProtocol))
	assert.True(t, ShouldOutput(VerbosityTrace, OutputProtocol))
	assert.False(t, ShouldOutput(VerbosityDebug, OutputCategory(99)))
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "User", LevelName(0))
	assert.Equal(t, "Debug (-vv)", LevelName(2))
	assert.Equal(t, "Trace (-vvv)", LevelName(5))
	assert.Equal(t, "Unknown", LevelName(-1))
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithComponent(ctx, "scanner")

	LoggerFromContext(ctx, base).Infow("batch done")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "sess-1", fields[FieldSessionID])
		assert.Equal(t, "scanner", fields[FieldComponent])
		assert.NotContains(t, fields, FieldClientID)
	}
}

func TestLoggerFromContextWithoutFields(t *testing.T) {
	base := zap.NewNop().Sugar()
	assert.Same(t, base, LoggerFromContext(context.Background(), base))
}

func TestLoggingFunctionsWithNilLogger(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	Logger = nil
	// Must not panic
	Infow("info")
	Warnw("warn")
	Errorw("error")
	Debugw("debug")
	Cleanup()
}
