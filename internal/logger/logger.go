// Package logger builds the process-wide structured logger, following
// the teacher's common/logger package: a single *zap.Logger constructed
// once, level driven by config rather than recompilation.
package logger

import (
	"strings"

	"github.com/Laisky/zap"
)

// New builds a *zap.Logger for the given level name ("debug", "info",
// "warn", "error"; defaults to "info") and encoding ("json" or console).
func New(level string, jsonOutput bool) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	if !jsonOutput {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zapLevel
	cfg.DisableStacktrace = true

	return cfg.Build()
}

// Nop returns a logger that discards everything, used in tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
