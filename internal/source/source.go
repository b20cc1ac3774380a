// Package source defines the channel items tgmigrate moves and the
// channel-service contract it needs to move them.
package source

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies an item by the content it carries.
type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindVoice    Kind = "voice"
	KindLink     Kind = "link"
	KindOther    Kind = "other"
)

// ParseKind maps a stored kind label back to a Kind. Unknown labels are KindOther.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindText, KindPhoto, KindDocument, KindVideo, KindAudio, KindVoice, KindLink:
		return k
	default:
		return KindOther
	}
}

// HasMedia reports whether items of this kind carry sendable media.
func (k Kind) HasMedia() bool {
	switch k {
	case KindPhoto, KindDocument, KindVideo, KindAudio, KindVoice:
		return true
	}
	return false
}

// Entity is a resolved channel handle usable by the transport.
type Entity struct {
	ID       int64  // marked peer id, e.g. -1001234567890 for channels
	Username string // public username without "@", may be empty
	Title    string
	Peer     string // opaque transport handle
}

// String returns a human label for logs and prompts.
func (e Entity) String() string {
	switch {
	case e.Title != "" && e.Username != "":
		return fmt.Sprintf("%s (@%s)", e.Title, e.Username)
	case e.Title != "":
		return e.Title
	case e.Username != "":
		return "@" + e.Username
	default:
		return fmt.Sprintf("%d", e.ID)
	}
}

// MediaRef points at media attached to a source item.
type MediaRef struct {
	Handle    string // opaque, understood by the collector bridge
	Origin    Entity // channel the media lives in
	MessageID int64  // item id inside Origin
	LinkURL   string // webpage preview url, if any
}

// Item is one message of the source channel.
type Item struct {
	ID        int64
	Timestamp time.Time
	Kind      Kind
	Text      string
	Media     *MediaRef
}

// LinkURL returns the embedded webpage preview url, or "".
func (it Item) LinkURL() string {
	if it.Media == nil {
		return ""
	}
	return it.Media.LinkURL
}

// Resolver turns user references into entities.
type Resolver interface {
	ResolveEntity(ctx context.Context, ref string) (Entity, error)
	JoinViaInvite(ctx context.Context, token string) (Entity, error)
}

// Pager reads channel history newest-first. Items returned have ids strictly
// below beforeID; beforeID == 0 starts from the newest item.
type Pager interface {
	FetchHistoryPage(ctx context.Context, e Entity, beforeID int64, limit int) ([]Item, error)
}

// Sender delivers content to a destination channel.
type Sender interface {
	SendMedia(ctx context.Context, dst Entity, media MediaRef, caption string) error
	SendText(ctx context.Context, dst Entity, text string) error
}

// Client is the full channel-service contract.
type Client interface {
	Resolver
	Pager
	Sender
}
