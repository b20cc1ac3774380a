package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/ledger"
	"github.com/ppiankov/tgmigrate/internal/source"
)

// seedLedger writes records with the given statuses (ids 1..n) to a TSV ledger.
func seedLedger(t *testing.T, path string, statuses ...ledger.Status) {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(ctx, ledger.Config{Path: path})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer func() { _ = l.Close() }()
	for i, s := range statuses {
		id := int64(i + 1)
		if err := l.RecordPending(ctx, source.Item{ID: id, Kind: source.KindText, Text: "msg"}); err != nil {
			t.Fatalf("record pending: %v", err)
		}
		if s == ledger.StatusPending {
			continue
		}
		if err := l.UpdateStatus(ctx, id, s, "boom"); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	seedLedger(t, ledgerPath, ledger.StatusSuccess, ledger.StatusFailed, ledger.StatusPending)

	out, err := runCLI(t, "", "status", "--config-dir", dir, "--format", "json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	var got struct {
		Counts struct {
			Success, Failed, Pending int
		} `json:"counts"`
		Failed []struct {
			ID    int64  `json:"id"`
			Error string `json:"error"`
		} `json:"failed"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse output: %v\n%s", err, out)
	}
	if got.Counts.Success != 1 || got.Counts.Failed != 1 || got.Counts.Pending != 1 {
		t.Errorf("counts = %+v", got.Counts)
	}
	if len(got.Failed) != 1 || got.Failed[0].ID != 2 || got.Failed[0].Error != "boom" {
		t.Errorf("failed = %+v", got.Failed)
	}
}

func TestStatus_Terminal(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	seedLedger(t, ledgerPath, ledger.StatusSuccess, ledger.StatusFailed)

	out, err := runCLI(t, "", "status", "--config-dir", dir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "--- Failed (1) ---") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Error("non-terminal output should not contain ANSI codes")
	}
}

func TestStatus_NoLedger(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")

	_, err := runCLI(t, "", "status", "--config-dir", dir)
	if err == nil || !strings.Contains(err.Error(), "no ledger") {
		t.Fatalf("err = %v, want no ledger", err)
	}
	if _, statErr := os.Stat(ledgerPath); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("status must not create the ledger")
	}
}

func TestStatus_UnknownFormat(t *testing.T) {
	dir, _ := writeConfig(t, "")
	_, err := runCLI(t, "", "status", "--config-dir", dir, "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("err = %v", err)
	}
}

func TestExport_ToFile(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	seedLedger(t, ledgerPath, ledger.StatusSuccess, ledger.StatusSkipped)
	outPath := filepath.Join(t.TempDir(), "export.tsv")

	if _, err := runCLI(t, "", "export", "--config-dir", dir, "--out", outPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2", len(lines))
	}
	if lines[0] != strings.Join(ledger.Header, "\t") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "\tSKIPPED\t") {
		t.Errorf("line 3 = %q", lines[2])
	}
}

func TestExport_Stdout(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	seedLedger(t, ledgerPath, ledger.StatusSuccess)

	out, err := runCLI(t, "", "export", "--config-dir", dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(out, "MessageID\tTimestamp") || !strings.Contains(out, "\tSUCCESS\t") {
		t.Errorf("output = %q", out)
	}
}

func TestImport_MergesIntoSQLite(t *testing.T) {
	dir, _ := writeConfig(t, "")
	dbPath := filepath.Join(dir, "ledger.db")
	t.Setenv("TGMIGRATE_LEDGER_BACKEND", ledger.BackendSQLite)
	t.Setenv("TGMIGRATE_LEDGER_PATH", dbPath)

	resume := filepath.Join(t.TempDir(), "resume.txt")
	seedLedger(t, resume, ledger.StatusSuccess, ledger.StatusFailed, ledger.StatusPending)

	out, err := runCLI(t, "", "import", "--config-dir", dir, resume)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Merged 3 records") {
		t.Errorf("output = %q", out)
	}

	l, err := ledger.Open(context.Background(), ledger.Config{Backend: ledger.BackendSQLite, Path: dbPath})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = l.Close() }()
	records, _ := l.Records(context.Background())
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Status != ledger.StatusSuccess || records[1].Status != ledger.StatusFailed || records[2].Status != ledger.StatusPending {
		t.Errorf("statuses = %s %s %s", records[0].Status, records[1].Status, records[2].Status)
	}
	if records[1].Error != "boom" {
		t.Errorf("error = %q", records[1].Error)
	}
}

func TestImport_DryRun(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	resume := filepath.Join(t.TempDir(), "old.txt")
	seedLedger(t, resume, ledger.StatusSuccess, ledger.StatusSuccess)

	out, err := runCLI(t, "", "import", "--config-dir", dir, "--dry-run", resume)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Would merge 2 records") || !strings.Contains(out, "SUCCESS  2") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(ledgerPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("dry run must not create the ledger")
	}
}

func TestImport_Errors(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	seedLedger(t, ledgerPath, ledger.StatusSuccess)

	if _, err := runCLI(t, "", "import", "--config-dir", dir, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for a missing resume file")
	}
	_, err := runCLI(t, "", "import", "--config-dir", dir, ledgerPath)
	if err == nil || !strings.Contains(err.Error(), "is the configured ledger") {
		t.Errorf("err = %v, want self-import error", err)
	}
}

func stubDoctorTools(t *testing.T, pyErr, importErr error) {
	t.Helper()
	oldLook, oldImport := lookPath, pythonImport
	lookPath = func(name string) (string, error) { return "/usr/bin/" + name, pyErr }
	pythonImport = func(string, string) error { return importErr }
	t.Cleanup(func() { lookPath, pythonImport = oldLook, oldImport })
}

func TestDoctor_AllPass(t *testing.T) {
	dir, _ := writeConfig(t, "")
	t.Setenv("TGM_TEST_API_ID", "12345")
	t.Setenv("TGM_TEST_API_HASH", "abcdef")
	stubDoctorTools(t, nil, nil)

	if err := os.WriteFile(filepath.Join(dir, "collector.py"), []byte("# bridge\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "session"), 0o755); err != nil {
		t.Fatalf("mkdir session: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session", "tgmigrate.session"), nil, 0o600); err != nil {
		t.Fatalf("write session: %v", err)
	}

	out, err := runCLI(t, "", "doctor", "--config-dir", dir)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if strings.Contains(out, "[FAIL]") || !strings.Contains(out, "All checks passed.") {
		t.Errorf("output = %q", out)
	}
}

func TestDoctor_ReportsFailures(t *testing.T) {
	dir, _ := writeConfig(t, "bot:\n  token_env: TGM_TEST_BOT_TOKEN\n")
	t.Setenv("TGMIGRATE_SENDER", config.SenderBot)
	stubDoctorTools(t, nil, errors.New("no module"))

	out, err := runCLI(t, "", "doctor", "--config-dir", dir)
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	for _, want := range []string{
		"[FAIL] telegram api credentials (set TGM_TEST_API_ID and TGM_TEST_API_HASH)",
		"[FAIL] telethon not installed",
		"[FAIL] collector script",
		"[FAIL] telegram session",
		"[FAIL] bot token (set TGM_TEST_BOT_TOKEN)",
		"[ OK ] config.yaml (sender bot, ledger tsv)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDoctor_MissingPython(t *testing.T) {
	dir, _ := writeConfig(t, "")
	stubDoctorTools(t, errors.New("not found"), nil)

	out, _ := runCLI(t, "", "doctor", "--config-dir", dir)
	if !strings.Contains(out, "[FAIL] python3 not found") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "telethon") {
		t.Error("telethon check should be skipped without python")
	}
}
