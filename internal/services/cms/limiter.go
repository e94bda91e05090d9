package cms

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// lowWater is the advertised remaining budget at which requests start
// waiting for the server's reset time.
const lowWater = 2

// Limiter paces CMS requests. It is safe for concurrent use and is shared by
// every request a Client makes.
type Limiter struct {
	tokens *rate.Limiter

	mu        sync.Mutex
	remaining int
	reset     time.Time
	known     bool

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter builds a limiter allowing requestsPerMinute with the given burst.
// A non-positive rate disables the local bucket.
func NewLimiter(requestsPerMinute float64, burst int) *Limiter {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		tokens: rate.NewLimiter(limit, burst),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if delay := l.budgetDelay(); delay > 0 {
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
		l.mu.Lock()
		l.known = false
		l.mu.Unlock()
	}
	return l.tokens.Wait(ctx)
}

func (l *Limiter) budgetDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.known || l.remaining > lowWater || l.reset.IsZero() {
		return 0
	}
	delay := l.reset.Sub(l.now()) + time.Second
	if delay < 0 {
		return 0
	}
	return delay
}

// Observe records the rate-limit headers from a response.
func (l *Limiter) Observe(header http.Header) {
	if l == nil || header == nil {
		return
	}
	remainingRaw := strings.TrimSpace(header.Get("X-RateLimit-Remaining"))
	if remainingRaw == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remaining = remaining
	l.known = true
	if resetRaw := strings.TrimSpace(header.Get("X-RateLimit-Reset")); resetRaw != "" {
		if seconds, err := strconv.ParseInt(resetRaw, 10, 64); err == nil {
			l.reset = resetTime(seconds, l.now())
		}
	}
}

// Remaining returns the last advertised budget and whether one was seen.
func (l *Limiter) Remaining() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining, l.known
}

// resetTime accepts either an epoch timestamp or a seconds-from-now delta.
func resetTime(value int64, now time.Time) time.Time {
	if value > 1_000_000_000 {
		return time.Unix(value, 0)
	}
	return now.Add(time.Duration(value) * time.Second)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
