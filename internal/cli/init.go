package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/source"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func initAction(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(out, configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}

	scriptPath := filepath.Join(configDir, filepath.Base(config.DefaultScript))
	wroteScript, err := writeIfNotExists(out, scriptPath, source.CollectorScript, 0o755)
	if err != nil {
		return err
	}

	if !wrote && !wroteScript {
		fmt.Fprintf(out, "Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Fprintf(out, "Initialized %s. Set TELEGRAM_API_ID and TELEGRAM_API_HASH, then run tgmigrate doctor.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(out io.Writer, path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# tgmigrate configuration

telegram:
  api_id_env: TELEGRAM_API_ID
  api_hash_env: TELEGRAM_API_HASH
  session_dir: .tgmigrate/session
  script: .tgmigrate/collector.py
  python_path: python3
  timeout: 2m

bot:
  # Used only when transfer.sender is "bot".
  token_env: TELEGRAM_BOT_TOKEN
  proxy: ""

transfer:
  source: ""          # @username, t.me link, invite link or numeric id
  destination: ""
  content: all        # all | text | media
  delay: 1s           # base pause between messages, jittered 0.5x..1.5x
  max_per_minute: 0   # 0 disables the cap
  since: ""           # YYYY-MM-DD, skip older messages
  sender: collector   # collector | bot

ledger:
  backend: tsv        # tsv | sqlite | bolt
  # path: .tgmigrate/resume.txt   # default depends on backend (ledger.db, ledger.bolt)
  redact:
    enabled: false
    builtin: []       # email, phone, invite, card
    patterns: []

logging:
  file: .tgmigrate/tgmigrate.log
  level: info
`
