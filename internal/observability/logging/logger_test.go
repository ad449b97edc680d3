package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewJSONLoggerToWritesServiceAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "worker", "debug")

	logger.Debug("document_processed", "document_id", "doc-1", "status", "classified")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "worker" || entry["msg"] != "document_processed" || entry["status"] != "classified" {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInfoLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLoggerTo(&buf, "api", "info").Debug("noise")
	if buf.Len() != 0 {
		t.Fatalf("expected debug line to be dropped, got %s", buf.String())
	}
}
