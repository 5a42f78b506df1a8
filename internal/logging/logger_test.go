package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range testCases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestNewLoggerWritesToRotatingFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "irontrack.log")

	logger, err := NewLogger("info", logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("workout logged")
	logger.Debug("suppressed entry")
	_ = logger.Sync()

	contents, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(contents), "workout logged") {
		t.Fatalf("expected log file to contain entry, got %q", string(contents))
	}
	if strings.Contains(string(contents), "suppressed entry") {
		t.Fatalf("expected debug entry to be filtered")
	}
}
