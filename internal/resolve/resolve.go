// Package resolve turns user-supplied channel references into entities,
// falling back to joining through an invite link when direct lookup fails.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ppiankov/tgmigrate/internal/source"
)

// ErrNoToken means neither direct lookup nor invite extraction found a channel.
var ErrNoToken = errors.New("no token")

// ResolutionError reports a reference that could not be resolved or joined.
type ResolutionError struct {
	Reference string
	Reason    string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %s", e.Reference, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

var invitePattern = regexp.MustCompile(`(?:joinchat/|/\+|\+)([A-Za-z0-9_-]+)`)

// ExtractInviteToken returns the invite token of a channel link: the part after
// "joinchat/" or "+", otherwise the last path segment.
func ExtractInviteToken(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if m := invitePattern.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	trimmed := strings.TrimRight(link, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Resolver resolves references through a channel client.
type Resolver struct {
	client source.Resolver
	logger *slog.Logger
}

// New creates a Resolver. A nil logger discards.
func New(client source.Resolver, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{client: client, logger: logger}
}

// Resolve returns the entity for reference. Joining through an invite changes
// channel membership of the account.
func (r *Resolver) Resolve(ctx context.Context, reference string) (source.Entity, error) {
	entity, err := r.client.ResolveEntity(ctx, reference)
	if err == nil {
		return entity, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return source.Entity{}, &ResolutionError{Reference: reference, Reason: ctxErr.Error(), Err: ctxErr}
	}
	r.logger.Debug("direct resolve failed", "reference", reference, "error", err)

	token := ExtractInviteToken(reference)
	if token == "" {
		return source.Entity{}, &ResolutionError{Reference: reference, Reason: ErrNoToken.Error(), Err: ErrNoToken}
	}

	entity, err = r.client.JoinViaInvite(ctx, token)
	if err != nil {
		return source.Entity{}, &ResolutionError{Reference: reference, Reason: err.Error(), Err: err}
	}
	r.logger.Info("joined via invite", "reference", reference, "entity", entity.String())
	return entity, nil
}
