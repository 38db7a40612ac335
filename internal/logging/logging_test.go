package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		ok    bool
	}{
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"Warning", slog.LevelWarn, true},
		{"WARN", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"CRITICAL", LevelCritical, true},
		{" error ", slog.LevelError, true},
		{"TRACE", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		level, ok := ParseLevel(tt.name)
		if ok != tt.ok || level != tt.level {
			t.Errorf("ParseLevel(%q) = %v, %v; expected %v, %v",
				tt.name, level, ok, tt.level, tt.ok)
		}
	}
}

func TestComponentLoggerFollowsInit(t *testing.T) {
	// Component loggers created before Init must still pick up handler
	// changes.
	log := Component("testcomp")

	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, nil))
	defer Init(slog.LevelInfo, false)

	log.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "component=testcomp") {
		t.Errorf("expected component attribute in output, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	defer Init(slog.LevelInfo, false)

	log := Component("filtered")
	log.Info("quiet")
	log.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info record must be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn record must pass, got %q", out)
	}
}
