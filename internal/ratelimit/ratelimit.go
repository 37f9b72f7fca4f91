// Package ratelimit implements per-actor sliding-window admission.
//
// HOW THE WINDOW WORKS:
// For every (actor, class) pair we keep the timestamps of admitted requests
// from the last 60 seconds. A check first drops timestamps older than the
// window, then compares what is left against the class ceiling:
//
//	count >= ceiling  → deny; reset = oldest timestamp + 60s
//	count <  ceiling  → admit; the new timestamp is appended
//
// One mutex guards all windows, so check-and-append is atomic and two
// concurrent requests can never both take the last free slot.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/debugging-platform/internal/metrics"
)

// Window is the sliding window length.
const Window = 60 * time.Second

// Unlimited is the Remaining value reported when limiting is disabled
// or the class has no ceiling.
const Unlimited = 999

// Class is a category of request with its own ceiling.
type Class string

const (
	ClassRequest Class = "request"
	ClassCodeRun Class = "code_run"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// RetryAfter is how long a denied caller should wait, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

type key struct {
	actor string
	class Class
}

// Limiter tracks request windows. Create it with New.
type Limiter struct {
	enabled  bool
	ceilings map[Class]int
	metrics  *metrics.Sink
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	windows map[key][]time.Time
}

// Config holds the ceilings.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	CodeRunsPerMinute int
}

// New creates a Limiter.
func New(cfg Config, sink *metrics.Sink, logger *slog.Logger) *Limiter {
	return &Limiter{
		enabled: cfg.Enabled,
		ceilings: map[Class]int{
			ClassRequest: cfg.RequestsPerMinute,
			ClassCodeRun: cfg.CodeRunsPerMinute,
		},
		metrics: sink,
		logger:  logger,
		now:     time.Now,
		windows: make(map[key][]time.Time),
	}
}

// SetClock replaces the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// RetryAfter is d.RetryAfter measured on the limiter's clock.
func (l *Limiter) RetryAfter(d Decision) time.Duration {
	l.mu.Lock()
	now := l.now()
	l.mu.Unlock()
	return d.RetryAfter(now)
}

// Check admits or denies one request and, when admitted, records it.
func (l *Limiter) Check(actor string, class Class) Decision {
	if !l.enabled {
		return Decision{Allowed: true, Remaining: Unlimited}
	}
	ceiling, ok := l.ceilings[class]
	if !ok {
		return Decision{Allowed: true, Remaining: Unlimited}
	}

	l.mu.Lock()
	now := l.now()
	k := key{actor: actor, class: class}
	window := prune(l.windows[k], now)

	if len(window) >= ceiling {
		l.windows[k] = window
		l.mu.Unlock()

		resetAt := window[0].Add(Window)
		l.metrics.Increment("rate_limit_exceeded")
		l.logger.Warn("rate limit exceeded",
			slog.String("actor", actor),
			slog.String("class", string(class)),
			slog.Time("resetAt", resetAt),
		)
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	window = append(window, now)
	l.windows[k] = window
	l.mu.Unlock()

	return Decision{
		Allowed:   true,
		Remaining: ceiling - len(window),
		ResetAt:   now.Add(Window),
	}
}

// Record appends a timestamp without checking the ceiling.
// Used when a request was admitted elsewhere but must still count.
func (l *Limiter) Record(actor string, class Class) {
	if !l.enabled {
		return
	}
	if _, ok := l.ceilings[class]; !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := key{actor: actor, class: class}
	l.windows[k] = append(prune(l.windows[k], now), now)
}

// Sweep drops windows with no timestamps left inside the window.
// It returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, window := range l.windows {
		window = prune(window, now)
		if len(window) == 0 {
			delete(l.windows, k)
			removed++
			continue
		}
		l.windows[k] = window
	}
	return removed
}

// Len is the number of tracked (actor, class) windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops timestamps at or before now-Window. Timestamps are appended
// in order, so the survivors are a suffix.
func prune(window []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0:0], window[i:]...)
}
