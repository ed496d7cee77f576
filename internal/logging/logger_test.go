package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, cfg Config) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg.DebugMode = true
	Attach(zap.New(core), cfg)
	t.Cleanup(func() { Attach(nil, Config{}) })
	return logs
}

func TestDisabledByDefault(t *testing.T) {
	Attach(nil, Config{DebugMode: true})
	assert.False(t, IsDebugMode(), "no core means no logging")
	assert.False(t, IsCategoryEnabled(CategoryOracle))

	Attach(nil, Config{})
	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategoryOracle))

	// No-op loggers must be safe to use.
	OracleDebug("ignored %d", 1)
	Get(CategoryLedger).With("k", "v").Error("ignored")
}

func TestCategoryToggles(t *testing.T) {
	logs := observe(t, Config{Categories: map[string]bool{"oracle": false, "contract": true}})

	Get(CategoryOracle).Info("oracle message")
	Contract("contract message %s", "loaded")
	Batch("batch message")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "contract message loaded", entries[0].Message)
	assert.Equal(t, "contract", entries[0].LoggerName)
	assert.Equal(t, "batch", entries[1].LoggerName)
}

func TestStructuredLog(t *testing.T) {
	logs := observe(t, Config{})

	Get(CategoryServer).StructuredLog("warn", "slow request", map[string]interface{}{"ms": 250})
	Get(CategoryServer).With("route", "/api/verify").Debug("handled")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(250), entries[0].ContextMap()["ms"])
	assert.Equal(t, "/api/verify", entries[1].ContextMap()["route"])
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ggl.log")
	cfg := Config{DebugMode: true, Level: "debug", Format: "json", File: path}
	l, err := NewLogger(cfg)
	require.NoError(t, err)
	Attach(l, cfg)
	t.Cleanup(func() { Attach(nil, Config{}) })

	assert.True(t, IsDebugMode())
	Boot("hello")
	Sync()
	assert.FileExists(t, path)
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(Config{DebugMode: true, Level: "loud"})
	assert.Error(t, err)
}

func TestAttach_DebugModeOffSilencesCategories(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Attach(zap.New(core), Config{})
	t.Cleanup(func() { Attach(nil, Config{}) })

	assert.False(t, IsDebugMode())
	for _, c := range []Category{CategoryBoot, CategoryContract, CategoryOracle, CategoryBatch, CategoryLedger, CategoryServer} {
		assert.False(t, IsCategoryEnabled(c), c)
	}
	Boot("hidden")
	LedgerDebug("hidden")
	assert.Zero(t, logs.Len())
}

func TestNewLogger_Level(t *testing.T) {
	l, err := NewLogger(Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}
