package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer enforces a minimum gap between sends to the same channel.
type pacer struct {
	interval time.Duration

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastSweep time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until channelID may be sent to again.
func (p *pacer) Wait(ctx context.Context, channelID string) error {
	if p == nil || p.interval <= 0 {
		return nil
	}
	p.mu.Lock()
	p.sweepLocked(time.Now())
	l, ok := p.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[channelID] = l
	}
	p.mu.Unlock()
	return l.Wait(ctx)
}

// sweepLocked drops limiters whose bucket has refilled, at most once per
// interval. A full bucket paces exactly like a new limiter.
func (p *pacer) sweepLocked(now time.Time) {
	if now.Sub(p.lastSweep) < p.interval {
		return
	}
	p.lastSweep = now
	for id, l := range p.limiters {
		if l.TokensAt(now) >= 1 {
			delete(p.limiters, id)
		}
	}
}

func (p *pacer) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}
