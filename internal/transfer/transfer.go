// Package transfer copies an ordered channel history into a destination,
// recording every message in the ledger before and after it is attempted.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/tgmigrate/internal/ledger"
	"github.com/ppiankov/tgmigrate/internal/source"
)

// Config is fixed for the lifetime of an Engine.
type Config struct {
	Filter       Filter
	BaseDelay    time.Duration
	MaxPerMinute int

	// Rand and Sleep replace the jitter source and the pacing sleep in tests.
	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome of one delivery attempt.
type Outcome int

const (
	Sent Outcome = iota
	Failed
	NoMatch
)

// Result is the outcome of delivering one item.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Reporter receives per-item progress events.
type Reporter interface {
	Succeeded()
	Failed(id int64, reason string)
	Skipped()
}

// Failure is one item that could not be delivered.
type Failure struct {
	ID     int64
	Reason string
}

// Summary counts what a run did. Success includes NoMatch items.
type Summary struct {
	Total    int
	Success  int
	Failed   int
	Skipped  int
	NoMatch  int
	Failures []Failure
}

// Processed is the number of items that reached a final state in this run.
func (s Summary) Processed() int {
	return s.Success + s.Failed + s.Skipped
}

// Session is one run: the destination and the ascending items to copy there.
type Session struct {
	Destination source.Entity
	Items       []source.Item
	Reporter    Reporter
}

// Engine runs sessions against one sender and ledger.
type Engine struct {
	cfg    Config
	sender source.Sender
	ledger ledger.Ledger
	pacer  *pacer
	logger *slog.Logger
}

// New validates cfg and builds an Engine. A nil logger discards.
func New(cfg Config, sender source.Sender, l ledger.Ledger, logger *slog.Logger) (*Engine, error) {
	if sender == nil {
		return nil, errors.New("transfer: sender is required")
	}
	if l == nil {
		return nil, errors.New("transfer: ledger is required")
	}
	if cfg.BaseDelay < 0 {
		return nil, fmt.Errorf("transfer: delay must be >= 0, got %s", cfg.BaseDelay)
	}
	if cfg.MaxPerMinute < 0 {
		return nil, fmt.Errorf("transfer: max per minute must be >= 0, got %d", cfg.MaxPerMinute)
	}
	f, err := ParseFilter(string(cfg.Filter))
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	cfg.Filter = f
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		cfg:    cfg,
		sender: sender,
		ledger: l,
		pacer:  newPacer(cfg),
		logger: logger,
	}, nil
}

// Run processes the session items in order. Send failures are recorded and
// skipped over; ledger failures and cancellation stop the run. An item whose
// send was interrupted by cancellation stays PENDING.
func (e *Engine) Run(ctx context.Context, s Session) (Summary, error) {
	sum := Summary{Total: len(s.Items)}
	rep := s.Reporter
	if rep == nil {
		rep = nopReporter{}
	}

	completed, err := e.ledger.CompletedIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("transfer: load completed: %w", err)
	}
	e.logger.Info("transfer started",
		"destination", s.Destination.String(),
		"items", len(s.Items),
		"already_done", len(completed),
		"filter", string(e.cfg.Filter),
	)

	for i, it := range s.Items {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if err := e.ledger.RecordPending(ctx, it); err != nil {
			return sum, fmt.Errorf("transfer: %w", err)
		}

		if _, done := completed[it.ID]; done {
			if err := e.ledger.UpdateStatus(ctx, it.ID, ledger.StatusSkipped, ""); err != nil {
				return sum, fmt.Errorf("transfer: %w", err)
			}
			sum.Skipped++
			rep.Skipped()
			continue
		}

		res := e.deliver(ctx, s.Destination, it)
		if res.Outcome == Failed && ctx.Err() != nil {
			e.logger.Warn("send interrupted", "id", it.ID)
			return sum, ctx.Err()
		}

		switch res.Outcome {
		case Failed:
			if err := e.ledger.UpdateStatus(ctx, it.ID, ledger.StatusFailed, res.Reason); err != nil {
				return sum, fmt.Errorf("transfer: %w", err)
			}
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{ID: it.ID, Reason: res.Reason})
			rep.Failed(it.ID, res.Reason)
			e.logger.Warn("send failed", "id", it.ID, "kind", string(it.Kind), "error", res.Reason)
		default:
			if err := e.ledger.UpdateStatus(ctx, it.ID, ledger.StatusSuccess, ""); err != nil {
				return sum, fmt.Errorf("transfer: %w", err)
			}
			sum.Success++
			if res.Outcome == NoMatch {
				sum.NoMatch++
				e.logger.Debug("nothing to send under filter", "id", it.ID, "kind", string(it.Kind))
			}
			rep.Succeeded()
		}

		if i < len(s.Items)-1 {
			if err := e.pacer.wait(ctx); err != nil {
				return sum, err
			}
		}
	}

	e.logger.Info("transfer finished",
		"success", sum.Success,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"no_match", sum.NoMatch,
	)
	return sum, nil
}

// deliver performs the action Decide picks for it.
func (e *Engine) deliver(ctx context.Context, dst source.Entity, it source.Item) Result {
	action := Decide(it, e.cfg.Filter)
	if action.Kind == NoOp {
		return Result{Outcome: NoMatch}
	}
	if err := e.pacer.acquire(ctx); err != nil {
		return Result{Outcome: Failed, Reason: err.Error()}
	}

	var err error
	switch action.Kind {
	case SendMedia:
		err = e.sender.SendMedia(ctx, dst, *action.Media, action.Text)
	case SendText, SendLink:
		err = e.sender.SendText(ctx, dst, action.Text)
	}
	if err != nil {
		return Result{Outcome: Failed, Reason: err.Error()}
	}
	return Result{Outcome: Sent}
}

type nopReporter struct{}

func (nopReporter) Succeeded()           {}
func (nopReporter) Failed(int64, string) {}
func (nopReporter) Skipped()             {}
