package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/ledger"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and dependencies",
	RunE:  doctorAction,
}

// Replaced in tests.
var (
	lookPath     = exec.LookPath
	pythonImport = func(python, module string) error {
		return exec.Command(python, "-c", "import "+module).Run()
	}
)

func doctorAction(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ok := true
	fail := func(format string, args ...any) {
		printCheck(out, false, format, args...)
		ok = false
	}

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		fail("config directory %s (run tgmigrate init)", configDir)
	} else {
		printCheck(out, true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		fail("config.yaml: %v", err)
	} else {
		printCheck(out, true, "config.yaml (sender %s, ledger %s)", cfg.Transfer.Sender, cfg.Ledger.Backend)
	}

	if cfg != nil {
		// Credentials
		if cfg.Telegram.APIID == "" || cfg.Telegram.APIHash == "" {
			fail("telegram api credentials (set %s and %s)", envName(cfg.Telegram.APIIDEnv), envName(cfg.Telegram.APIHashEnv))
		} else {
			printCheck(out, true, "telegram api credentials")
		}

		// Ledger
		if err := checkLedger(cmd, cfg); err != nil {
			fail("ledger %s: %v", cfg.Ledger.Path, err)
		} else {
			printCheck(out, true, "ledger %s (%s)", cfg.Ledger.Path, cfg.Ledger.Backend)
		}
	}

	// Python
	python := config.DefaultPython
	if cfg != nil {
		python = cfg.Telegram.PythonPath
	}
	if _, err := lookPath(python); err != nil {
		fail("%s not found", python)
	} else {
		printCheck(out, true, "%s", python)

		// Telethon
		if err := pythonImport(python, "telethon"); err != nil {
			fail("telethon not installed (pip install telethon)")
		} else {
			printCheck(out, true, "telethon")
		}
	}

	if cfg != nil {
		// Collector script
		if info, err := os.Stat(cfg.Telegram.Script); err != nil {
			fail("collector script: %v", err)
		} else if info.IsDir() {
			fail("collector script: %s is a directory", cfg.Telegram.Script)
		} else {
			printCheck(out, true, "collector script %s", cfg.Telegram.Script)
		}

		// Telegram session
		if hasSession(cfg.Telegram.SessionDir) {
			printCheck(out, true, "telegram session")
		} else {
			fail("telegram session in %s (run the collector script once to log in)", cfg.Telegram.SessionDir)
		}

		// Bot token
		if cfg.Transfer.Sender == config.SenderBot {
			if cfg.Bot.Token == "" {
				fail("bot token (set %s)", envName(cfg.Bot.TokenEnv))
			} else {
				printCheck(out, true, "bot token")
			}
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}

// checkLedger opens an existing ledger. A ledger that does not exist yet only
// needs a writable parent directory.
func checkLedger(cmd *cobra.Command, cfg *config.Config) error {
	if _, err := os.Stat(cfg.Ledger.Path); errors.Is(err, os.ErrNotExist) {
		dir := filepath.Dir(cfg.Ledger.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		return nil
	}
	l, err := ledger.Open(cmd.Context(), ledger.Config{Backend: cfg.Ledger.Backend, Path: cfg.Ledger.Path})
	if err != nil {
		return err
	}
	return l.Close()
}

func hasSession(dir string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, "*.session"))
	return err == nil && len(matches) > 0
}

func envName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "the *_env key in config.yaml"
	}
	return name
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}
