package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// telegramMaxLen is the Bot API limit for one text message.
const telegramMaxLen = 4096

// BotConfig configures the Bot API sender.
type BotConfig struct {
	Token string
	Proxy string
}

// BotSender delivers items with a bot that is admin in the destination and
// a member of the source. Media is copied server-side, so nothing is
// downloaded.
type BotSender struct {
	bot *telego.Bot
}

// NewBotSender creates a Bot API sender.
func NewBotSender(cfg BotConfig) (*BotSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("bot: token is required")
	}

	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("bot: invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("bot: create: %w", err)
	}
	return &BotSender{bot: bot}, nil
}

// SendMedia copies the source message into dst, replacing its caption.
func (b *BotSender) SendMedia(ctx context.Context, dst Entity, media MediaRef, caption string) error {
	if media.MessageID <= 0 {
		return errors.New("bot: media has no source message id")
	}
	from, err := chatID(media.Origin)
	if err != nil {
		return fmt.Errorf("bot: source chat: %w", err)
	}
	to, err := chatID(dst)
	if err != nil {
		return fmt.Errorf("bot: destination chat: %w", err)
	}

	_, err = b.bot.CopyMessage(ctx, &telego.CopyMessageParams{
		ChatID:     to,
		FromChatID: from,
		MessageID:  int(media.MessageID),
		Caption:    caption,
	})
	if err != nil {
		return fmt.Errorf("bot: copy message %d: %w", media.MessageID, err)
	}
	return nil
}

// SendText posts text to dst, split into Bot API sized chunks.
func (b *BotSender) SendText(ctx context.Context, dst Entity, text string) error {
	to, err := chatID(dst)
	if err != nil {
		return fmt.Errorf("bot: destination chat: %w", err)
	}
	for _, chunk := range splitText(text, telegramMaxLen) {
		if _, err := b.bot.SendMessage(ctx, tu.Message(to, chunk)); err != nil {
			return fmt.Errorf("bot: send message: %w", err)
		}
	}
	return nil
}

// chatID prefers the numeric peer id; public channels fall back to @username.
func chatID(e Entity) (telego.ChatID, error) {
	if e.ID != 0 {
		return tu.ID(e.ID), nil
	}
	if e.Username != "" {
		return tu.Username("@" + e.Username), nil
	}
	return telego.ChatID{}, errors.New("entity has no id or username")
}

// splitText cuts s into pieces of at most maxLen runes, preferring newlines.
func splitText(s string, maxLen int) []string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return []string{s}
	}

	var chunks []string
	for len(runes) > maxLen {
		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
