package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevelMapping(t *testing.T) {
	cases := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}

	for _, c := range cases {
		log, err := New(c.verbosity)
		if err != nil {
			t.Fatalf("New(%d): %v", c.verbosity, err)
		}
		if !log.Core().Enabled(c.want) {
			t.Fatalf("verbosity %d: level %v should be enabled", c.verbosity, c.want)
		}
		if c.want == zapcore.DebugLevel {
			continue
		}
		if log.Core().Enabled(c.want - 1) {
			t.Fatalf("verbosity %d: level %v should not be enabled", c.verbosity, c.want-1)
		}
	}
}
