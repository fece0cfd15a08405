package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew_AddsServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: DEBUG, Format: JSON, Output: &buf, Service: "reservations"})

	log.Component("sweeper").Info("sweep finished", "expired", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if entry[SERVICE] != "reservations" {
		t.Errorf("expected service attribute, got %v", entry[SERVICE])
	}
	if entry[COMPONENT] != "sweeper" {
		t.Errorf("expected component attribute, got %v", entry[COMPONENT])
	}
	if entry["expired"] != float64(2) {
		t.Errorf("expected expired=2, got %v", entry["expired"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		DEBUG:     slog.LevelDebug,
		INFO:      slog.LevelInfo,
		WARN:      slog.LevelWarn,
		ERROR:     slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Format: TEXT, Output: &buf})

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line should be filtered at warn level, got %q", buf.String())
	}

	log.Errorf("visible %d", 1)
	if !bytes.Contains(buf.Bytes(), []byte("visible 1")) {
		t.Errorf("expected formatted error line, got %q", buf.String())
	}
}
