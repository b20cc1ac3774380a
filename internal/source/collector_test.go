package source

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func jsonlFromMessages(t *testing.T, msgs []rawMessage) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			t.Fatalf("encode test message: %v", err)
		}
	}
	return &buf
}

func TestParseHistory_ValidMessages(t *testing.T) {
	origin := Entity{ID: -1001, Username: "old"}
	msgs := []rawMessage{
		{ID: 12, Date: "2026-02-16T12:00:00Z", Text: "newest"},
		{ID: 11, Date: "2026-02-16T11:00:00Z", Text: "a photo", Media: &rawMedia{Type: "photo", Handle: "h11"}},
		{ID: 10, Date: "2026-02-16T10:00:00Z", Text: "read this", Media: &rawMedia{Type: "webpage", URL: "https://example.com"}},
	}

	items, err := parseHistory(jsonlFromMessages(t, msgs), origin)
	if err != nil {
		t.Fatalf("parseHistory: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	if items[0].ID != 12 || items[0].Kind != KindText || items[0].Media != nil {
		t.Errorf("item[0] = %+v, want plain text 12", items[0])
	}
	want := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	if !items[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", items[0].Timestamp, want)
	}

	photo := items[1]
	if photo.Kind != KindPhoto {
		t.Errorf("kind = %q, want photo", photo.Kind)
	}
	if photo.Media == nil || photo.Media.Handle != "h11" {
		t.Fatalf("media = %+v, want handle h11", photo.Media)
	}
	if photo.Media.MessageID != 11 || photo.Media.Origin.ID != -1001 {
		t.Errorf("media origin = %+v / %d", photo.Media.Origin, photo.Media.MessageID)
	}

	if items[2].Kind != KindLink || items[2].LinkURL() != "https://example.com" {
		t.Errorf("item[2] kind=%q url=%q", items[2].Kind, items[2].LinkURL())
	}
}

func TestParseHistory_EmptyInput(t *testing.T) {
	items, err := parseHistory(strings.NewReader(""), Entity{})
	if err != nil {
		t.Fatalf("parseHistory: %v", err)
	}
	if items != nil {
		t.Errorf("got %d items, want nil", len(items))
	}
}

func TestParseHistory_InvalidJSON(t *testing.T) {
	input := `{"id":1,"date":"2026-02-16T10:00:00Z","text":"ok"}
{not valid json}
`
	_, err := parseHistory(strings.NewReader(input), Entity{})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error = %q, want containing 'line 2'", err)
	}
}

func TestParseHistory_InvalidDate(t *testing.T) {
	_, err := parseHistory(strings.NewReader(`{"id":1,"date":"yesterday"}`), Entity{})
	if err == nil {
		t.Fatal("expected error for invalid date")
	}
	if !strings.Contains(err.Error(), "invalid date") {
		t.Errorf("error = %q, want containing 'invalid date'", err)
	}
}

func TestParseHistory_MissingID(t *testing.T) {
	_, err := parseHistory(strings.NewReader(`{"date":"2026-02-16T10:00:00Z"}`), Entity{})
	if err == nil || !strings.Contains(err.Error(), "invalid id") {
		t.Fatalf("error = %v, want invalid id", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		media *rawMedia
		want  Kind
	}{
		{"no media", nil, KindText},
		{"photo", &rawMedia{Type: "photo"}, KindPhoto},
		{"webpage", &rawMedia{Type: "webpage"}, KindLink},
		{"plain document", &rawMedia{Type: "document", MimeType: "application/pdf"}, KindDocument},
		{"video document", &rawMedia{Type: "document", MimeType: "video/mp4"}, KindVideo},
		{"audio document", &rawMedia{Type: "document", MimeType: "audio/mpeg"}, KindAudio},
		{"voice note", &rawMedia{Type: "document", MimeType: "audio/ogg", Voice: true}, KindVoice},
		{"explicit voice", &rawMedia{Type: "voice"}, KindVoice},
		{"geo", &rawMedia{Type: "geo"}, KindOther},
		{"poll", &rawMedia{Type: "Poll"}, KindOther},
	}

	for _, tt := range tests {
		if got := classify(tt.media); got != tt.want {
			t.Errorf("%s: classify = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseEntity(t *testing.T) {
	e, err := parseEntity([]byte(`{"id":-1001234,"username":"@news","title":"News","peer":"channel:1234"}` + "\n"))
	if err != nil {
		t.Fatalf("parseEntity: %v", err)
	}
	if e.ID != -1001234 || e.Username != "news" || e.Title != "News" || e.Peer != "channel:1234" {
		t.Errorf("entity = %+v", e)
	}

	if _, err := parseEntity([]byte(`{"title":"no id"}`)); err == nil {
		t.Error("expected error for entity without id or peer")
	}
	if _, err := parseEntity([]byte(`nope`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestNewCollector_Validation(t *testing.T) {
	if _, err := NewCollector(CollectorConfig{APIID: "1", APIHash: "h"}); err == nil || !strings.Contains(err.Error(), "script path is required") {
		t.Errorf("empty script: err = %v", err)
	}
	if _, err := NewCollector(CollectorConfig{Script: "bridge.py"}); err == nil || !strings.Contains(err.Error(), "api id") {
		t.Errorf("missing credentials: err = %v", err)
	}

	c, err := NewCollector(CollectorConfig{Script: "bridge.py", APIID: "1", APIHash: "h"})
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	if c.cfg.Python != "python3" {
		t.Errorf("python = %q, want python3", c.cfg.Python)
	}
	if c.cfg.Timeout != defaultCallTimeout {
		t.Errorf("timeout = %v, want %v", c.cfg.Timeout, defaultCallTimeout)
	}
}

func TestPeerArg(t *testing.T) {
	if got := peerArg(Entity{ID: 5, Username: "u", Peer: "p"}); got != "p" {
		t.Errorf("peerArg with peer = %q", got)
	}
	if got := peerArg(Entity{ID: 5, Username: "u"}); got != "@u" {
		t.Errorf("peerArg with username = %q", got)
	}
	if got := peerArg(Entity{ID: -1005}); got != "-1005" {
		t.Errorf("peerArg with id = %q", got)
	}
}

func TestCollector_MissingInterpreter(t *testing.T) {
	c, err := NewCollector(CollectorConfig{
		Script:  "bridge.py",
		Python:  "/nonexistent/python3",
		APIID:   "1",
		APIHash: "h",
	})
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	_, err = c.ResolveEntity(context.Background(), "@chan")
	if err == nil {
		t.Fatal("expected error for missing interpreter")
	}
	if !strings.Contains(err.Error(), "collector:") {
		t.Errorf("error = %q, want containing 'collector:'", err)
	}
}

// fakeBridge writes a shell script that stands in for the Telethon helper.
func fakeBridge(t *testing.T, body string) *Collector {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell bridge not available on windows")
	}
	path := filepath.Join(t.TempDir(), "bridge.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write bridge: %v", err)
	}
	c, err := NewCollector(CollectorConfig{
		Script:  path,
		Python:  "sh",
		APIID:   "1",
		APIHash: "h",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	return c
}

func TestCollector_HistoryOverBridge(t *testing.T) {
	c := fakeBridge(t, `#!/bin/sh
# args: --api-id 1 --api-hash h --session-dir "" history --peer P --before B --limit L
if [ "$8" != "--peer" ] || [ "$9" != "chan:1" ]; then echo "bad peer: $8 $9" >&2; exit 2; fi
echo '{"id":2,"date":"2026-02-16T11:00:00Z","text":"two"}'
echo '{"id":1,"date":"2026-02-16T10:00:00Z","text":"one"}'
`)

	items, err := c.FetchHistoryPage(context.Background(), Entity{ID: -1001, Peer: "chan:1"}, 0, 100)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(items) != 2 || items[0].ID != 2 || items[1].ID != 1 {
		t.Fatalf("items = %+v", items)
	}
}

func TestCollector_StderrSurfaced(t *testing.T) {
	c := fakeBridge(t, `#!/bin/sh
echo "Traceback (most recent call last):" >&2
echo "FloodWaitError: A wait of 30 seconds is required" >&2
exit 1
`)

	err := c.SendText(context.Background(), Entity{ID: -1002}, "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "send-text failed: FloodWaitError") {
		t.Errorf("error = %q, want the exception line", err)
	}
}

func TestCollector_SendTextUsesStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "stdin.txt")
	c := fakeBridge(t, "#!/bin/sh\ncat > "+out+"\n")

	if err := c.SendText(context.Background(), Entity{ID: -1002}, "line one\nline two"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read stdin copy: %v", err)
	}
	if string(got) != "line one\nline two" {
		t.Errorf("stdin = %q", got)
	}
}

func TestCollector_SendMediaRequiresHandle(t *testing.T) {
	c, err := NewCollector(CollectorConfig{Script: "bridge.py", APIID: "1", APIHash: "h"})
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	err = c.SendMedia(context.Background(), Entity{ID: 1}, MediaRef{}, "caption")
	if err == nil || !strings.Contains(err.Error(), "media handle is empty") {
		t.Errorf("error = %v", err)
	}
}

func TestCollectorScriptEmbedded(t *testing.T) {
	script := string(CollectorScript)
	for _, op := range []string{"resolve", "join", "history", "send-media", "send-text"} {
		if !strings.Contains(script, `"`+op+`"`) {
			t.Errorf("embedded script does not handle %q", op)
		}
	}
}
