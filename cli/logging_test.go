package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   slog.Level
		wantOK bool
	}{
		{"trace", LevelTrace, true},
		{"DEBUG", slog.LevelDebug, true},
		{" info ", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, false},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)
	logger.Log(context.Background(), LevelTrace, "stage detail", "stage", "build")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "stage=build") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	NewLogger(&buf, slog.LevelWarn).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestResolveLogLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	if got := resolveLogLevel(&Settings{}); got != slog.LevelInfo {
		t.Errorf("default level = %v", got)
	}
	if got := resolveLogLevel(&Settings{LogLevel: "debug"}); got != slog.LevelDebug {
		t.Errorf("settings level = %v", got)
	}
	t.Setenv(EnvLogLevel, "error")
	if got := resolveLogLevel(&Settings{LogLevel: "debug"}); got != slog.LevelError {
		t.Errorf("environment should override settings, got %v", got)
	}
}
