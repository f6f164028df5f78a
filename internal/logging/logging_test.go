package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		level    string
		encoding string
		enabled  zapcore.Level
		disabled zapcore.Level
	}{
		{"", "", zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", "console", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"WARN", "json", zapcore.WarnLevel, zapcore.InfoLevel},
	}
	for _, tc := range cases {
		log, err := New(tc.level, tc.encoding)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tc.level, tc.encoding, err)
		}
		if !log.Core().Enabled(tc.enabled) {
			t.Fatalf("level %q should enable %s", tc.level, tc.enabled)
		}
		if log.Core().Enabled(tc.disabled) {
			t.Fatalf("level %q should not enable %s", tc.level, tc.disabled)
		}
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	if _, err := New("verbose", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected encoding error")
	}
}
