package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tgmigrate.log")
	logger, closer, err := Setup(path, "debug")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger, runID := WithRun(logger)
	logger.Debug("page fetched", "items", 100)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if rec["msg"] != "page fetched" || rec["run_id"] != runID || rec["items"] != float64(100) {
		t.Errorf("record = %v", rec)
	}
	if len(runID) != 36 {
		t.Errorf("run id = %q", runID)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tgmigrate.log")
	logger, closer, err := Setup(path, "warn")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	_ = closer.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Errorf("log = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if ValidLevel("verbose") || !ValidLevel("Warn") || !ValidLevel("") {
		t.Error("ValidLevel mismatch")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	got, err := expandHome("~/logs/x.log")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != "/home/test/logs/x.log" {
		t.Errorf("got %q", got)
	}
}
