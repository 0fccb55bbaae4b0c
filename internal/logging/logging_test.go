package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNew_WritesStdoutAndFile(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "mailhook.log")

	logger, err := newWithWriter(&stdout, "info", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("relay started", "run_id", "abc")
	logger.Debug("hidden")
	if err := logger.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(data) != stdout.String() {
		t.Errorf("file and stdout differ:\nfile:   %q\nstdout: %q", data, stdout.String())
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines: got %d, want 1 (debug filtered)", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "relay started" {
		t.Errorf("msg: got %v, want %q", entry["msg"], "relay started")
	}
	if entry["run_id"] != "abc" {
		t.Errorf("run_id: got %v, want %q", entry["run_id"], "abc")
	}
}

func TestNew_AppendsToExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mailhook.log")
	if err := os.WriteFile(path, []byte("previous run\n"), 0644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	logger, err := newWithWriter(&bytes.Buffer{}, "info", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Error("boom")
	logger.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "previous run\n") {
		t.Errorf("log file was truncated: %q", data)
	}
	if !strings.Contains(string(data), `"msg":"boom"`) {
		t.Errorf("log file missing new entry: %q", data)
	}
}

func TestNew_NoFile(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	logger, err := newWithWriter(&stdout, "warn", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if err := logger.Close(); err != nil {
		t.Errorf("Close(): %v", err)
	}

	if strings.Contains(stdout.String(), "dropped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(stdout.String(), "kept") {
		t.Error("warn line missing")
	}
}
