package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/tgmigrate/internal/config"
	"github.com/ppiankov/tgmigrate/internal/ledger"
	"github.com/ppiankov/tgmigrate/internal/source"
)

func channelItems() []source.Item {
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local)
	return []source.Item{
		{ID: 10, Timestamp: ts, Kind: source.KindText, Text: "first"},
		{ID: 11, Timestamp: ts, Kind: source.KindPhoto, Text: "caption", Media: &source.MediaRef{Handle: "p11", MessageID: 11}},
		{ID: 12, Timestamp: ts, Kind: source.KindText, Text: "third"},
	}
}

func TestMigrate_CopiesAndRecords(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	client := newFakeClient(channelItems()...)
	useClient(t, client)

	out, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--yes")
	if err != nil {
		t.Fatalf("migrate: %v\n%s", err, out)
	}

	want := []string{"text:first", "media:p11:caption", "text:third"}
	if strings.Join(client.sent, "|") != strings.Join(want, "|") {
		t.Errorf("sent = %v, want %v", client.sent, want)
	}
	if !strings.Contains(out, "3 messages found") {
		t.Errorf("output missing fetch count:\n%s", out)
	}
	if !strings.Contains(out, "✓ Success : 3") {
		t.Errorf("output missing summary:\n%s", out)
	}

	records := readLedger(t, ledgerPath)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, r := range records {
		if r.Status != ledger.StatusSuccess {
			t.Errorf("record %d status = %s, want SUCCESS", r.ID, r.Status)
		}
	}
}

func TestMigrate_ResumeSkipsCompleted(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	client := newFakeClient(channelItems()...)
	client.failText = "third"
	useClient(t, client)

	if _, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--yes"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	records := readLedger(t, ledgerPath)
	if records[2].Status != ledger.StatusFailed || !strings.Contains(records[2].Error, "CHAT_WRITE_FORBIDDEN") {
		t.Fatalf("record 12 = %+v, want FAILED", records[2])
	}

	client.failText = ""
	client.sent = nil
	out, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--yes")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(client.sent) != 1 || client.sent[0] != "text:third" {
		t.Errorf("sent = %v, want only the failed message", client.sent)
	}
	if !strings.Contains(out, "⟳ Skipped : 2") {
		t.Errorf("output missing skipped count:\n%s", out)
	}
	if got := readLedger(t, ledgerPath)[2].Status; got != ledger.StatusSuccess {
		t.Errorf("record 12 status = %s, want SUCCESS", got)
	}
}

func TestMigrate_EmptyChannel(t *testing.T) {
	dir, ledgerPath := writeConfig(t, "")
	useClient(t, newFakeClient())

	out, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--yes")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Channel is empty — nothing to transfer.") {
		t.Errorf("output = %q", out)
	}
	if len(readLedger(t, ledgerPath)) != 0 {
		t.Error("empty channel should leave no records")
	}
}

func TestMigrate_TextFilterNoMatch(t *testing.T) {
	dir, _ := writeConfig(t, "")
	items := []source.Item{
		{ID: 1, Kind: source.KindPhoto, Media: &source.MediaRef{Handle: "p1"}},
		{ID: 2, Kind: source.KindText, Text: "hello"},
	}
	client := newFakeClient(items...)
	useClient(t, client)

	out, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--content", "TEXT", "--yes")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(client.sent) != 1 || client.sent[0] != "text:hello" {
		t.Errorf("sent = %v", client.sent)
	}
	if !strings.Contains(out, `1 messages had nothing matching the "text" filter`) {
		t.Errorf("output missing no-match note:\n%s", out)
	}
}

func TestMigrate_Declined(t *testing.T) {
	dir, _ := writeConfig(t, "")
	called := false
	old := newClient
	newClient = func(*config.Config) (source.Client, error) {
		called = true
		return newFakeClient(), nil
	}
	t.Cleanup(func() { newClient = old })

	out, err := runCLI(t, "n\n", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Start transfer? [Y/n]") || !strings.Contains(out, "Cancelled.") {
		t.Errorf("output = %q", out)
	}
	if called {
		t.Error("client created after the user declined")
	}
}

func TestMigrate_ResolveFailure(t *testing.T) {
	dir, _ := writeConfig(t, "")
	useClient(t, newFakeClient(channelItems()...))

	_, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@missing", "--to", "@dst", "--yes")
	if err == nil || !strings.Contains(err.Error(), "source:") {
		t.Fatalf("err = %v, want source resolution error", err)
	}
}

func TestMigrate_RequiresChannels(t *testing.T) {
	dir, _ := writeConfig(t, "")
	useClient(t, newFakeClient())

	_, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--yes")
	if err == nil || !strings.Contains(err.Error(), "source and destination are required") {
		t.Fatalf("err = %v", err)
	}
}

func TestMigrate_InvalidFlags(t *testing.T) {
	dir, _ := writeConfig(t, "")
	useClient(t, newFakeClient())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"content", []string{"--content", "stickers"}, "invalid content filter"},
		{"delay", []string{"--delay", "soon"}, "--delay"},
		{"negative delay", []string{"--delay", "-1s"}, "transfer.delay"},
		{"since", []string{"--since", "02/01/2026"}, "YYYY-MM-DD"},
		{"cap", []string{"--max-per-minute", "-5"}, "max_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--yes"}, tt.args...)
			_, err := runCLI(t, "", args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestMigrate_BotSender(t *testing.T) {
	dir, _ := writeConfig(t, "bot:\n  token_env: TGM_TEST_BOT_TOKEN\n")
	t.Setenv("TGM_TEST_BOT_TOKEN", "123:abc")
	t.Setenv("TGMIGRATE_SENDER", "bot")
	reader := newFakeClient(channelItems()...)
	useClient(t, reader)

	bot := newFakeClient()
	var gotToken string
	old := newBotSender
	newBotSender = func(cfg *config.Config) (source.Sender, error) {
		gotToken = cfg.Bot.Token
		return bot, nil
	}
	t.Cleanup(func() { newBotSender = old })

	if _, err := runCLI(t, "", "migrate", "--config-dir", dir, "--from", "@src", "--to", "@dst", "--yes"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if gotToken != "123:abc" {
		t.Errorf("token = %q", gotToken)
	}
	if len(reader.sent) != 0 || len(bot.sent) != 3 {
		t.Errorf("reader sent %d, bot sent %d; want 0 and 3", len(reader.sent), len(bot.sent))
	}
}

func TestConfirm(t *testing.T) {
	cfg := config.Default()
	cfg.Transfer.Source = "@src"
	cfg.Transfer.Destination = "@dst"

	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"no\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out strings.Builder
		if got := confirm(strings.NewReader(tt.input), &out, &cfg); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Destination : @dst") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}
