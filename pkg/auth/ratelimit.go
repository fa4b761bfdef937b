package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an authenticated caller may issue another
// request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig is the request allowance of one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// rateWindow is the length of one counting window.
const rateWindow = time.Minute

// sweepEvery is how many Allow calls pass between evictions of idle
// windows.
const sweepEvery = 1024

// InProcessLimiter counts requests per caller in fixed one-minute windows
// that open on the caller's first request. Counts live in process memory,
// so each replica enforces its own allowance.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	calls   int
}

type window struct {
	opened time.Time
	used   int
}

// NewInProcessLimiter creates a limiter. Tiers missing from tiers use
// defaultRPM; a non-positive allowance means unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
}

// Allow returns ErrTooManyRequests once the caller has used up the
// allowance of the current window.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	limit := l.limitFor(tier)
	if limit <= 0 {
		return nil
	}

	key := tier + "/" + identity.Subject

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	w := l.windows[key]
	if w == nil || now.Sub(w.opened) >= rateWindow {
		l.windows[key] = &window{opened: now, used: 1}
		return nil
	}
	if w.used >= limit {
		return ErrTooManyRequests
	}
	w.used++
	return nil
}

func (l *InProcessLimiter) limitFor(tier string) int {
	if tc, ok := l.tiers[tier]; ok {
		return tc.RequestsPerMinute
	}
	return l.defaultRPM
}

// sweep drops windows that have expired. Callers hold l.mu.
func (l *InProcessLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.opened) >= rateWindow {
			delete(l.windows, key)
		}
	}
}

// tracked returns the number of open windows.
func (l *InProcessLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
