// Package config loads config.yaml from the config directory and applies
// TGMIGRATE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tgmigrate/internal/ledger"
	"github.com/ppiankov/tgmigrate/internal/logging"
	"github.com/ppiankov/tgmigrate/internal/privacy"
	"github.com/ppiankov/tgmigrate/internal/transfer"
)

const (
	DefaultConfigDir   = ".tgmigrate"
	DefaultConfigFile  = "config.yaml"
	DefaultSessionDir  = ".tgmigrate/session"
	DefaultScript      = ".tgmigrate/collector.py"
	DefaultPython      = "python3"
	DefaultCallTimeout = 2 * time.Minute
	DefaultContent     = "all"
	DefaultDelay       = time.Second
	DefaultSender      = SenderCollector
	DefaultBackend     = ledger.BackendTSV
	DefaultLogFile     = ".tgmigrate/tgmigrate.log"
	DefaultLogLevel    = "info"

	SinceLayout = "2006-01-02"
)

// Sender names.
const (
	SenderCollector = "collector"
	SenderBot       = "bot"
)

var defaultLedgerPaths = map[string]string{
	ledger.BackendTSV:    ".tgmigrate/resume.txt",
	ledger.BackendSQLite: ".tgmigrate/ledger.db",
	ledger.BackendBolt:   ".tgmigrate/ledger.bolt",
}

// Duration wraps time.Duration for YAML and env values like "1.5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText accepts Go durations and bare numbers of seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Bot      BotConfig      `yaml:"bot"`
	Transfer TransferConfig `yaml:"transfer"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type TelegramConfig struct {
	APIIDEnv   string   `yaml:"api_id_env"`
	APIHashEnv string   `yaml:"api_hash_env"`
	SessionDir string   `yaml:"session_dir" env:"TGMIGRATE_TELEGRAM_SESSION_DIR"`
	Script     string   `yaml:"script" env:"TGMIGRATE_TELEGRAM_SCRIPT"`
	PythonPath string   `yaml:"python_path" env:"TGMIGRATE_TELEGRAM_PYTHON"`
	Timeout    Duration `yaml:"timeout" env:"TGMIGRATE_TELEGRAM_TIMEOUT"`

	// Resolved from env vars at load time.
	APIID   string `yaml:"-"`
	APIHash string `yaml:"-"`
}

type BotConfig struct {
	TokenEnv string `yaml:"token_env"`
	Proxy    string `yaml:"proxy" env:"TGMIGRATE_BOT_PROXY"`

	// Resolved from env var at load time.
	Token string `yaml:"-"`
}

type TransferConfig struct {
	Source       string   `yaml:"source" env:"TGMIGRATE_SOURCE"`
	Destination  string   `yaml:"destination" env:"TGMIGRATE_DESTINATION"`
	Content      string   `yaml:"content" env:"TGMIGRATE_CONTENT"`
	Delay        Duration `yaml:"delay" env:"TGMIGRATE_DELAY"`
	MaxPerMinute int      `yaml:"max_per_minute" env:"TGMIGRATE_MAX_PER_MINUTE"`
	Since        string   `yaml:"since" env:"TGMIGRATE_SINCE"`
	Sender       string   `yaml:"sender" env:"TGMIGRATE_SENDER"`
}

type LedgerConfig struct {
	Backend string       `yaml:"backend" env:"TGMIGRATE_LEDGER_BACKEND"`
	Path    string       `yaml:"path" env:"TGMIGRATE_LEDGER_PATH"`
	Redact  RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Builtin  []string `yaml:"builtin"`
	Patterns []string `yaml:"patterns"`
}

type LoggingConfig struct {
	File  string `yaml:"file" env:"TGMIGRATE_LOG_FILE"`
	Level string `yaml:"level" env:"TGMIGRATE_LOG_LEVEL"`
}

// Load reads config.yaml from dir, applies defaults and env overrides, and
// validates. A missing file is not an error; everything can come from flags
// and the environment.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	cfg := Default()
	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set. Load decodes
// on top of it, so an explicit zero delay is kept.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{
			SessionDir: DefaultSessionDir,
			Script:     DefaultScript,
			PythonPath: DefaultPython,
			Timeout:    Duration{DefaultCallTimeout},
		},
		Transfer: TransferConfig{
			Content: DefaultContent,
			Delay:   Duration{DefaultDelay},
			Sender:  DefaultSender,
		},
		Ledger: LedgerConfig{
			Backend: DefaultBackend,
		},
		Logging: LoggingConfig{
			File:  DefaultLogFile,
			Level: DefaultLogLevel,
		},
	}
}

// applyDefaults fills values left blank by the file or derived from others.
func applyDefaults(cfg *Config) {
	if cfg.Telegram.SessionDir == "" {
		cfg.Telegram.SessionDir = DefaultSessionDir
	}
	if cfg.Telegram.Script == "" {
		cfg.Telegram.Script = DefaultScript
	}
	if cfg.Telegram.PythonPath == "" {
		cfg.Telegram.PythonPath = DefaultPython
	}
	if cfg.Telegram.Timeout.Duration == 0 {
		cfg.Telegram.Timeout.Duration = DefaultCallTimeout
	}
	if cfg.Transfer.Content == "" {
		cfg.Transfer.Content = DefaultContent
	}
	if cfg.Transfer.Sender == "" {
		cfg.Transfer.Sender = DefaultSender
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultBackend
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = defaultLedgerPaths[cfg.Ledger.Backend]
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = DefaultLogFile
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Telegram.APIIDEnv != "" {
		cfg.Telegram.APIID = os.Getenv(cfg.Telegram.APIIDEnv)
	}
	if cfg.Telegram.APIHashEnv != "" {
		cfg.Telegram.APIHash = os.Getenv(cfg.Telegram.APIHashEnv)
	}
	if cfg.Bot.TokenEnv != "" {
		cfg.Bot.Token = os.Getenv(cfg.Bot.TokenEnv)
	}
}

// Validate checks values that can also be changed by flags after Load.
func (cfg *Config) Validate() error {
	if _, err := transfer.ParseFilter(cfg.Transfer.Content); err != nil {
		return fmt.Errorf("transfer.content: %w", err)
	}
	if cfg.Transfer.Delay.Duration < 0 {
		return fmt.Errorf("transfer.delay: must be >= 0, got %s", cfg.Transfer.Delay.Duration)
	}
	if cfg.Transfer.MaxPerMinute < 0 {
		return fmt.Errorf("transfer.max_per_minute: must be >= 0, got %d", cfg.Transfer.MaxPerMinute)
	}
	if _, err := cfg.SinceTime(); err != nil {
		return err
	}

	switch cfg.Transfer.Sender {
	case SenderCollector, SenderBot:
	default:
		return fmt.Errorf("transfer.sender: unknown sender %q (want collector or bot)", cfg.Transfer.Sender)
	}

	if _, ok := defaultLedgerPaths[cfg.Ledger.Backend]; !ok {
		return fmt.Errorf("ledger.backend: unknown backend %q (want tsv, sqlite or bolt)", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Redact.Enabled {
		if _, err := privacy.NewRedactor(cfg.Ledger.Redact.Builtin, cfg.Ledger.Redact.Patterns); err != nil {
			return fmt.Errorf("ledger.redact: %w", err)
		}
	}

	if !logging.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	return nil
}

// SinceTime parses transfer.since as a local date. Empty gives the zero time.
func (cfg *Config) SinceTime() (time.Time, error) {
	if strings.TrimSpace(cfg.Transfer.Since) == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(SinceLayout, strings.TrimSpace(cfg.Transfer.Since), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("transfer.since: want YYYY-MM-DD, got %q", cfg.Transfer.Since)
	}
	return t, nil
}

// Redactor builds the preview redactor, nil when redaction is off.
func (cfg *Config) Redactor() (*privacy.Redactor, error) {
	if !cfg.Ledger.Redact.Enabled {
		return nil, nil
	}
	return privacy.NewRedactor(cfg.Ledger.Redact.Builtin, cfg.Ledger.Redact.Patterns)
}

// DefaultLedgerPath returns the ledger file used for backend when none is set.
func DefaultLedgerPath(backend string) string {
	return defaultLedgerPaths[backend]
}
