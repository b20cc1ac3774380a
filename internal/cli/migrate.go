package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/history"
	"github.com/ppiankov/tgmigrate/internal/ledger"
	"github.com/ppiankov/tgmigrate/internal/logging"
	"github.com/ppiankov/tgmigrate/internal/progress"
	"github.com/ppiankov/tgmigrate/internal/resolve"
	"github.com/ppiankov/tgmigrate/internal/source"
	"github.com/ppiankov/tgmigrate/internal/transfer"
)

var (
	migrateFrom         string
	migrateTo           string
	migrateContent      string
	migrateDelay        string
	migrateSince        string
	migrateMaxPerMinute int
	migrateYes          bool
)

// Replaced in tests.
var (
	newClient = func(cfg *config.Config) (source.Client, error) {
		return source.NewCollector(source.CollectorConfig{
			Script:     cfg.Telegram.Script,
			Python:     cfg.Telegram.PythonPath,
			APIID:      cfg.Telegram.APIID,
			APIHash:    cfg.Telegram.APIHash,
			SessionDir: cfg.Telegram.SessionDir,
			Timeout:    cfg.Telegram.Timeout.Duration,
		})
	}
	newBotSender = func(cfg *config.Config) (source.Sender, error) {
		return source.NewBotSender(source.BotConfig{
			Token: cfg.Bot.Token,
			Proxy: cfg.Bot.Proxy,
		})
	}
	isTerminal = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every message of the source channel to the destination",
	RunE:  migrateAction,
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateFrom, "from", "", "source channel (@username, link, invite link or id)")
	f.StringVar(&migrateTo, "to", "", "destination channel")
	f.StringVar(&migrateContent, "content", "", "content filter: all, text or media")
	f.StringVar(&migrateDelay, "delay", "", "base delay between messages, e.g. 1.5s or 2")
	f.StringVar(&migrateSince, "since", "", "skip messages older than this date (YYYY-MM-DD)")
	f.IntVar(&migrateMaxPerMinute, "max-per-minute", 0, "cap sends per minute (0 disables)")
	f.BoolVarP(&migrateYes, "yes", "y", false, "start without asking for confirmation")
	rootCmd.AddCommand(migrateCmd)
}

func migrateAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyMigrateFlags(cmd, cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Transfer.Source) == "" || strings.TrimSpace(cfg.Transfer.Destination) == "" {
		return errors.New("source and destination are required (--from/--to or transfer.source/transfer.destination)")
	}

	out := cmd.OutOrStdout()
	if !migrateYes && !confirm(cmd.InOrStdin(), out, cfg) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	logger, closer, err := logging.Setup(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = closer.Close() }()
	logger, runID := logging.WithRun(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("migrate started",
		"source", cfg.Transfer.Source,
		"destination", cfg.Transfer.Destination,
		"content", cfg.Transfer.Content,
		"delay", cfg.Transfer.Delay.Duration,
		"sender", cfg.Transfer.Sender,
	)

	err = runMigrate(ctx, out, cfg, logger)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(out, "\nInterrupted. Run again to resume (run %s).\n", runID)
		logger.Warn("migrate interrupted")
		return fmt.Errorf("migrate: %w", err)
	case err != nil:
		logger.Error("migrate failed", "error", err)
		return err
	}
	logger.Info("migrate finished")
	return nil
}

func runMigrate(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	client, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	var sender source.Sender = client
	if cfg.Transfer.Sender == config.SenderBot {
		sender, err = newBotSender(cfg)
		if err != nil {
			return fmt.Errorf("create bot sender: %w", err)
		}
	}

	resolver := resolve.New(client, logger)
	src, err := resolver.Resolve(ctx, cfg.Transfer.Source)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := resolver.Resolve(ctx, cfg.Transfer.Destination)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	logger.Info("channels resolved", "source", src.String(), "destination", dst.String())

	live := isTerminal(out)
	rep := progress.New(out, progress.Options{
		Live:       live,
		Color:      live && !noColor,
		LedgerPath: cfg.Ledger.Path,
	})

	since, err := cfg.SinceTime()
	if err != nil {
		return err
	}
	fetcher := &history.Fetcher{
		Pager:  client,
		Since:  since,
		OnPage: rep.Fetching,
		Logger: logger,
	}
	items, err := fetcher.FetchAll(ctx, src)
	if err != nil {
		return err
	}
	rep.Fetched(len(items))
	if len(items) == 0 {
		fmt.Fprintln(out, "Channel is empty — nothing to transfer.")
		return nil
	}

	redactor, err := cfg.Redactor()
	if err != nil {
		return err
	}
	ledgerCfg := ledger.Config{
		Backend: cfg.Ledger.Backend,
		Path:    cfg.Ledger.Path,
	}
	if !redactor.Empty() {
		ledgerCfg.Redact = redactor.Redact
	}
	l, err := ledger.Open(ctx, ledgerCfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	engine, err := transfer.New(transfer.Config{
		Filter:       transfer.Filter(cfg.Transfer.Content),
		BaseDelay:    cfg.Transfer.Delay.Duration,
		MaxPerMinute: cfg.Transfer.MaxPerMinute,
	}, sender, l, logger)
	if err != nil {
		return err
	}

	rep.Start(len(items))
	sum, runErr := engine.Run(ctx, transfer.Session{
		Destination: dst,
		Items:       items,
		Reporter:    rep,
	})
	rep.Finish()

	if sum.NoMatch > 0 {
		fmt.Fprintf(out, "    %d messages had nothing matching the %q filter and were marked done.\n",
			sum.NoMatch, cfg.Transfer.Content)
	}
	logger.Info("transfer summary",
		"total", sum.Total,
		"success", sum.Success,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"no_match", sum.NoMatch,
	)
	return runErr
}

// applyMigrateFlags overrides config values with the flags that were set.
func applyMigrateFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("from") {
		cfg.Transfer.Source = migrateFrom
	}
	if f.Changed("to") {
		cfg.Transfer.Destination = migrateTo
	}
	if f.Changed("content") {
		cfg.Transfer.Content = strings.ToLower(strings.TrimSpace(migrateContent))
	}
	if f.Changed("delay") {
		if err := cfg.Transfer.Delay.UnmarshalText([]byte(migrateDelay)); err != nil {
			return fmt.Errorf("--delay: %w", err)
		}
	}
	if f.Changed("since") {
		cfg.Transfer.Since = migrateSince
	}
	if f.Changed("max-per-minute") {
		cfg.Transfer.MaxPerMinute = migrateMaxPerMinute
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// confirm prints the run parameters and reads the answer. Empty means yes.
func confirm(in io.Reader, out io.Writer, cfg *config.Config) bool {
	fmt.Fprintln(out, "  ── transfer "+strings.Repeat("─", 32))
	fmt.Fprintf(out, "    Source      : %s\n", cfg.Transfer.Source)
	fmt.Fprintf(out, "    Destination : %s\n", cfg.Transfer.Destination)
	fmt.Fprintf(out, "    Content     : %s\n", cfg.Transfer.Content)
	fmt.Fprintf(out, "    Delay       : %s\n", cfg.Transfer.Delay.Duration)
	if cfg.Transfer.Since != "" {
		fmt.Fprintf(out, "    Since       : %s\n", cfg.Transfer.Since)
	}
	fmt.Fprint(out, "\nStart transfer? [Y/n] ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	}
	return false
}
