// Package audit records security-relevant events.
//
// An audit entry is one structured log line:
//
//	level=WARN msg=ACCOUNT_LOCKED component=audit actor=student@example.com detail="Locked for 900s"
//
// The Trail also keeps the most recent entries in memory so the admin
// metrics endpoint and the tests can inspect them without parsing log files.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event names a lockout, session, or validator transition.
type Event string

const (
	LoginFailed        Event = "LOGIN_FAILED"
	LoginAttemptLocked Event = "LOGIN_ATTEMPT_LOCKED"
	AccountLocked      Event = "ACCOUNT_LOCKED"
	LoginSuccess       Event = "LOGIN_SUCCESS"
	SessionCreated     Event = "SESSION_CREATED"
	SessionTimeout     Event = "SESSION_TIMEOUT"
	SessionDestroyed   Event = "SESSION_DESTROYED"
	SecurityViolation  Event = "SECURITY_VIOLATION"
)

// defaultCapacity bounds the in-memory history.
const defaultCapacity = 200

// Entry is one recorded event.
type Entry struct {
	Event  Event     `json:"event"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Trail writes audit entries to a logger and remembers the latest ones.
// Safe for concurrent use.
type Trail struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	recent []Entry
	limit  int
}

// NewTrail creates a Trail writing to logger.
func NewTrail(logger *slog.Logger) *Trail {
	return &Trail{
		logger: logger,
		now:    time.Now,
		limit:  defaultCapacity,
	}
}

// Record emits exactly one audit entry.
func (t *Trail) Record(event Event, actor, detail string) {
	entry := Entry{Event: event, Actor: actor, Detail: detail, At: t.now()}

	level := slog.LevelInfo
	switch event {
	case LoginFailed, LoginAttemptLocked, AccountLocked, SecurityViolation:
		level = slog.LevelWarn
	}
	t.logger.Log(context.Background(), level, string(event),
		slog.String("actor", actor),
		slog.String("detail", detail),
	)

	t.mu.Lock()
	t.recent = append(t.recent, entry)
	if len(t.recent) > t.limit {
		t.recent = t.recent[len(t.recent)-t.limit:]
	}
	t.mu.Unlock()
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns all kept entries.
func (t *Trail) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > len(t.recent) {
		n = len(t.recent)
	}
	out := make([]Entry, n)
	copy(out, t.recent[len(t.recent)-n:])
	return out
}
