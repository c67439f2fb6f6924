package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_RejectsNoSinks(t *testing.T) {
	_, err := New(Config{Level: LevelInfo})
	require.Error(t, err)
}

func TestNew_RejectsFileEnabledWithoutPath(t *testing.T) {
	_, err := New(Config{Level: LevelInfo, File: FileConfig{Enabled: true}})
	require.Error(t, err)
}

func TestNew_ConsoleOnlyBuilds(t *testing.T) {
	l, err := New(Config{Level: LevelInfo, Console: ConsoleConfig{Enabled: true, Format: FormatConsole}})
	require.NoError(t, err)
	assert.NotNil(t, l.Logger)
}

func TestDefault_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { Default() })
}

func TestSetLevel_AdjustsWithoutRebuild(t *testing.T) {
	l, err := New(Config{Level: LevelInfo, Console: ConsoleConfig{Enabled: true, Format: FormatConsole}})
	require.NoError(t, err)
	l.SetLevel(LevelDebug)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))
}
