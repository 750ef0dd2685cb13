package retry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum delay between successive calls sharing a key
// (one key per downstream service). The first call on a key is admitted
// immediately; later calls wait out the remainder of the interval.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

// NewPacer creates a pacer with the given minimum inter-call interval.
// A zero or negative interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the key's interval admits another call, or the context
// is cancelled.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}
	return p.limiter(key).Wait(ctx)
}

func (p *Pacer) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[key] = lim
	}
	return lim
}
