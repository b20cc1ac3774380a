package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	_ "embed"
)

// CollectorScript is the Telethon helper that speaks the bridge protocol.
// init writes it into the config directory.
//
//go:embed collector.py
var CollectorScript []byte

const (
	defaultPython      = "python3"
	defaultCallTimeout = 2 * time.Minute
	maxLineLength      = 1 << 20 // 1 MiB per JSONL line
)

// CollectorConfig configures the Telethon helper bridge.
type CollectorConfig struct {
	Script     string
	Python     string
	APIID      string
	APIHash    string
	SessionDir string
	Timeout    time.Duration // per operation
}

// Collector talks to Telegram through a Telethon helper script. Each operation
// is one invocation:
//
//	python3 <script> --api-id ID --api-hash HASH --session-dir DIR <op> [flags]
//
// resolve and join print one entity object, history prints one message object
// per line (newest first), send-media and send-text read the caption or text
// from stdin and print nothing. A non-zero exit is a failure; stderr is
// surfaced in the returned error.
type Collector struct {
	cfg CollectorConfig
}

// NewCollector validates cfg and returns a bridge client.
func NewCollector(cfg CollectorConfig) (*Collector, error) {
	if strings.TrimSpace(cfg.Script) == "" {
		return nil, errors.New("collector: script path is required")
	}
	if strings.TrimSpace(cfg.APIID) == "" || strings.TrimSpace(cfg.APIHash) == "" {
		return nil, errors.New("collector: api id and api hash are required")
	}
	if cfg.Python == "" {
		cfg.Python = defaultPython
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	return &Collector{cfg: cfg}, nil
}

// ResolveEntity resolves a username, link or id.
func (c *Collector) ResolveEntity(ctx context.Context, ref string) (Entity, error) {
	out, err := c.run(ctx, "", "resolve", "--ref", ref)
	if err != nil {
		return Entity{}, err
	}
	return parseEntity(out)
}

// JoinViaInvite joins a private channel by invite token.
func (c *Collector) JoinViaInvite(ctx context.Context, token string) (Entity, error) {
	out, err := c.run(ctx, "", "join", "--token", token)
	if err != nil {
		return Entity{}, err
	}
	return parseEntity(out)
}

// FetchHistoryPage returns up to limit items older than beforeID, newest first.
func (c *Collector) FetchHistoryPage(ctx context.Context, e Entity, beforeID int64, limit int) ([]Item, error) {
	out, err := c.run(ctx, "", "history",
		"--peer", peerArg(e),
		"--before", strconv.FormatInt(beforeID, 10),
		"--limit", strconv.Itoa(limit),
	)
	if err != nil {
		return nil, err
	}
	items, err := parseHistory(bytes.NewReader(out), e)
	if err != nil {
		return nil, fmt.Errorf("collector: parse history: %w", err)
	}
	return items, nil
}

// SendMedia re-sends the referenced media to dst with caption.
func (c *Collector) SendMedia(ctx context.Context, dst Entity, media MediaRef, caption string) error {
	if media.Handle == "" {
		return errors.New("collector: media handle is empty")
	}
	_, err := c.run(ctx, caption, "send-media", "--peer", peerArg(dst), "--media", media.Handle)
	return err
}

// SendText posts text to dst.
func (c *Collector) SendText(ctx context.Context, dst Entity, text string) error {
	_, err := c.run(ctx, text, "send-text", "--peer", peerArg(dst))
	return err
}

func (c *Collector) run(ctx context.Context, stdin, op string, opArgs ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := []string{
		c.cfg.Script,
		"--api-id", c.cfg.APIID,
		"--api-hash", c.cfg.APIHash,
		"--session-dir", c.cfg.SessionDir,
		op,
	}
	args = append(args, opArgs...)

	cmd := exec.CommandContext(ctx, c.cfg.Python, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("collector: %s not found: install Python 3 and Telethon", c.cfg.Python)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("collector: %s: %w", op, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("collector: %s failed: %s", op, lastLine(msg))
		}
		return nil, fmt.Errorf("collector: %s failed: %w", op, err)
	}
	return stdout.Bytes(), nil
}

func peerArg(e Entity) string {
	if e.Peer != "" {
		return e.Peer
	}
	if e.Username != "" {
		return "@" + e.Username
	}
	return strconv.FormatInt(e.ID, 10)
}

// lastLine keeps Python tracebacks down to the exception line.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// rawEntity is the entity object printed by resolve and join.
type rawEntity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Peer     string `json:"peer"`
}

func parseEntity(out []byte) (Entity, error) {
	var raw rawEntity
	if err := json.Unmarshal(bytes.TrimSpace(out), &raw); err != nil {
		return Entity{}, fmt.Errorf("collector: invalid entity: %w", err)
	}
	if raw.ID == 0 && raw.Peer == "" {
		return Entity{}, errors.New("collector: entity has neither id nor peer")
	}
	return Entity{
		ID:       raw.ID,
		Username: strings.TrimPrefix(raw.Username, "@"),
		Title:    raw.Title,
		Peer:     raw.Peer,
	}, nil
}

// rawMessage is the JSONL schema printed by history.
type rawMessage struct {
	ID    int64     `json:"id"`
	Date  string    `json:"date"`
	Text  string    `json:"text"`
	Media *rawMedia `json:"media"`
}

type rawMedia struct {
	Type     string `json:"type"` // photo, document, webpage, or the transport's own label
	MimeType string `json:"mime_type"`
	Voice    bool   `json:"voice"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
}

// parseHistory reads JSONL from r and builds items whose media lives in origin.
func parseHistory(r io.Reader, origin Entity) ([]Item, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var items []Item
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg rawMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("line %d: invalid json: %w", lineNum, err)
		}
		if msg.ID <= 0 {
			return nil, fmt.Errorf("line %d: invalid id %d", lineNum, msg.ID)
		}

		ts, err := time.Parse(time.RFC3339, msg.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", lineNum, msg.Date, err)
		}

		it := Item{
			ID:        msg.ID,
			Timestamp: ts,
			Kind:      classify(msg.Media),
			Text:      msg.Text,
		}
		if msg.Media != nil {
			it.Media = &MediaRef{
				Handle:    msg.Media.Handle,
				Origin:    origin,
				MessageID: msg.ID,
				LinkURL:   msg.Media.URL,
			}
		}
		items = append(items, it)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}

	return items, nil
}

// classify assigns the item kind once, from the raw media description.
func classify(m *rawMedia) Kind {
	if m == nil {
		return KindText
	}
	switch strings.ToLower(m.Type) {
	case "photo":
		return KindPhoto
	case "webpage":
		return KindLink
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	case "voice":
		return KindVoice
	case "document":
		mime := strings.ToLower(m.MimeType)
		switch {
		case m.Voice:
			return KindVoice
		case strings.HasPrefix(mime, "video/"):
			return KindVideo
		case strings.HasPrefix(mime, "audio/"):
			return KindAudio
		default:
			return KindDocument
		}
	default:
		return KindOther
	}
}
