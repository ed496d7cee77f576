// Package logging provides config-driven categorized logging for the oracle.
// Each subsystem logs through its own category; categories share one zap core.
// Logging is controlled by debug_mode - when false, every category is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config and flag resolution
	CategoryContract Category = "contract" // Contract loading, hashing, reloads
	CategoryOracle   Category = "oracle"   // Per-call stage transitions
	CategoryBatch    Category = "batch"    // Concurrent batch runs
	CategoryLedger   Category = "ledger"   // Verdict ledger reads and writes
	CategoryServer   Category = "server"   // HTTP surface
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	Format     string // json, console
	File       string // empty = stderr
	Categories map[string]bool
}

// Logger is a category-scoped sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	config  Config
	loggers = make(map[Category]*Logger)
)

// NewLogger builds a zap logger from the level, format and file settings
// of cfg. DebugMode is not consulted.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" || cfg.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{cfg.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Attach uses an existing zap logger as the shared core. The CLI uses this
// so that its root logger and the category loggers write to one place.
// Categories stay silent unless cfg.DebugMode is set.
func Attach(l *zap.Logger, cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	base = l
	loggers = make(map[Category]*Logger)
}

// IsDebugMode returns whether logging is enabled at all.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return config.DebugMode && base != nil
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !config.DebugMode || base == nil {
		return false
	}
	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	enabled := categoryEnabledLocked(category)
	mu.RUnlock()

	if !enabled {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	if base == nil {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// StructuredLog writes a message with structured fields at the given level.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	switch level {
	case "debug":
		l.sugar.Debugw(msg, kv...)
	case "warn":
		l.sugar.Warnw(msg, kv...)
	case "error":
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries (call at shutdown).
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Contract logs to the contract category
func Contract(format string, args ...interface{}) { Get(CategoryContract).Info(format, args...) }

// ContractDebug logs debug to the contract category
func ContractDebug(format string, args ...interface{}) {
	Get(CategoryContract).Debug(format, args...)
}

// OracleDebug logs debug to the oracle category
func OracleDebug(format string, args ...interface{}) { Get(CategoryOracle).Debug(format, args...) }

// Batch logs to the batch category
func Batch(format string, args ...interface{}) { Get(CategoryBatch).Info(format, args...) }

// BatchDebug logs debug to the batch category
func BatchDebug(format string, args ...interface{}) { Get(CategoryBatch).Debug(format, args...) }

// Ledger logs to the ledger category
func Ledger(format string, args ...interface{}) { Get(CategoryLedger).Info(format, args...) }

// LedgerDebug logs debug to the ledger category
func LedgerDebug(format string, args ...interface{}) { Get(CategoryLedger).Debug(format, args...) }

// Server logs to the server category
func Server(format string, args ...interface{}) { Get(CategoryServer).Info(format, args...) }
