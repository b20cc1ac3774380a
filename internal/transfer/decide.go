package transfer

import (
	"fmt"
	"strings"

	"github.com/ppiankov/tgmigrate/internal/source"
)

// Filter restricts which content of an item is delivered.
type Filter string

const (
	FilterAll   Filter = "all"
	FilterText  Filter = "text"
	FilterMedia Filter = "media"
)

// ParseFilter validates a content filter name. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterText, FilterMedia:
		return f, nil
	case "":
		return FilterAll, nil
	default:
		return "", fmt.Errorf("invalid content filter %q (want all, text or media)", s)
	}
}

func (f Filter) media() bool { return f == FilterAll || f == FilterMedia }
func (f Filter) text() bool  { return f == FilterAll || f == FilterText }

// ActionKind is the delivery chosen for one item.
type ActionKind int

const (
	NoOp ActionKind = iota
	SendMedia
	SendText
	SendLink
)

func (k ActionKind) String() string {
	switch k {
	case SendMedia:
		return "send_media"
	case SendText:
		return "send_text"
	case SendLink:
		return "send_link"
	default:
		return "noop"
	}
}

// Action is what Decide wants done with an item. Text is the caption for
// SendMedia and the message body otherwise.
type Action struct {
	Kind  ActionKind
	Text  string
	Media *source.MediaRef
}

// Decide picks the delivery for it under filter. Media wins over text, text
// wins over a bare link preview. It performs no I/O.
func Decide(it source.Item, filter Filter) Action {
	if filter.media() && it.Kind.HasMedia() && it.Media != nil {
		return Action{Kind: SendMedia, Text: it.Text, Media: it.Media}
	}
	if filter.text() && it.Text != "" {
		return Action{Kind: SendText, Text: it.Text}
	}
	if filter.media() {
		if url := it.LinkURL(); url != "" {
			return Action{Kind: SendLink, Text: linkMessage(it.Text, url)}
		}
	}
	return Action{Kind: NoOp}
}

func linkMessage(text, url string) string {
	if text == "" {
		return "[Link] " + url
	}
	return "[Link] " + text + "\n" + url
}
