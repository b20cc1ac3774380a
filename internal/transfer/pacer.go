package transfer

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces sends: a jittered delay after each attempt plus an optional
// per-minute cap.
type pacer struct {
	base    time.Duration
	jitter  func() float64 // uniform in [0, 1)
	sleep   func(ctx context.Context, d time.Duration) error
	limiter *rate.Limiter
}

func newPacer(cfg Config) *pacer {
	p := &pacer{
		base:   cfg.BaseDelay,
		jitter: cfg.Rand,
		sleep:  cfg.Sleep,
	}
	if p.jitter == nil {
		p.jitter = rand.Float64
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if cfg.MaxPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxPerMinute)), 1)
	}
	return p
}

// delay returns base * uniform(0.5, 1.5).
func (p *pacer) delay() time.Duration {
	return time.Duration(float64(p.base) * (0.5 + p.jitter()))
}

// wait sleeps the jittered delay between attempts.
func (p *pacer) wait(ctx context.Context) error {
	if p.base <= 0 {
		return nil
	}
	return p.sleep(ctx, p.delay())
}

// acquire blocks until the per-minute cap allows another send.
func (p *pacer) acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
