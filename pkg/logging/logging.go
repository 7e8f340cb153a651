// Package logging builds the zap logger shared across every stage, mapping
// the CLI's repeatable -v count to a level the way the teacher codebase's
// decoder/stream loggers are configured: Warn by default, Info at one,
// Debug at two or more.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded logger at the level implied by verbosity.
func New(verbosity int) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = verbosity < 3

	return cfg.Build()
}
