// Package history reads a channel's full message history in ascending order.
package history

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ppiankov/tgmigrate/internal/source"
)

// DefaultPageSize is the number of messages requested per page.
const DefaultPageSize = 100

// Fetcher pages through a channel newest-first and returns it oldest-first.
type Fetcher struct {
	Pager    source.Pager
	PageSize int
	// Since excludes items older than this time. Zero means the whole history.
	Since time.Time
	// OnPage is called after each page with the running item count.
	OnPage func(fetched int)
	Logger *slog.Logger
}

// FetchAll returns every item of src strictly ascending by id. An empty
// channel yields an empty slice. Any page error discards what was read.
func (f *Fetcher) FetchAll(ctx context.Context, src source.Entity) ([]source.Item, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		items  []source.Item
		cursor int64
		pages  int
	)
	for {
		page, err := f.Pager.FetchHistoryPage(ctx, src, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("history: page %d of %s: %w", pages+1, src, err)
		}
		if len(page) == 0 {
			break
		}
		pages++

		oldest := page[0].ID
		crossed := false
		for _, it := range page {
			if it.ID < oldest {
				oldest = it.ID
			}
			if !f.Since.IsZero() && it.Timestamp.Before(f.Since) {
				crossed = true
				continue
			}
			items = append(items, it)
		}
		if f.OnPage != nil {
			f.OnPage(len(items))
		}

		if cursor != 0 && oldest >= cursor {
			return nil, fmt.Errorf("history: page %d of %s did not advance past id %d", pages, src, cursor)
		}
		cursor = oldest
		if crossed {
			break
		}
	}

	slices.Reverse(items)
	if !ascending(items) {
		logger.Warn("history pages out of order, sorting", "entity", src.String(), "items", len(items))
		slices.SortFunc(items, func(a, b source.Item) int { return cmp.Compare(a.ID, b.ID) })
		items = slices.CompactFunc(items, func(a, b source.Item) bool { return a.ID == b.ID })
	}

	logger.Info("history fetched", "entity", src.String(), "pages", pages, "items", len(items))
	if items == nil {
		items = []source.Item{}
	}
	return items, nil
}

func ascending(items []source.Item) bool {
	for i := 1; i < len(items); i++ {
		if items[i].ID <= items[i-1].ID {
			return false
		}
	}
	return true
}
