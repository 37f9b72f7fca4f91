// Package security owns login lockouts, sessions and input hygiene.
//
// LOCKOUT:
// Failed logins are counted per identity (usually the email address) inside
// a trailing window equal to the lockout duration. Reaching the maximum
// number of attempts locks the identity until now + lockout duration.
// Only ClearFailedAttempts (a successful login) removes a lock early.
//
// SESSIONS:
// A session is an opaque token held server-side. Validation slides the idle
// deadline forward, so an active student is never logged out mid-exercise,
// while a session left idle past the timeout is removed on its next use or
// by SweepSessions.
//
// Every lockout and session transition writes exactly one audit entry.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/debugging-platform/internal/audit"
	"github.com/sakif/debugging-platform/internal/metrics"
)

// Role is the kind of account a session belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Password strength messages.
const (
	PasswordTooShort = "Password must be at least 8 characters"
	PasswordTooWeak  = "Password must contain uppercase, lowercase, and digit"
	PasswordStrong   = "Password is strong"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Session is an authenticated session.
type Session struct {
	Token        string    `json:"-"`
	Owner        string    `json:"owner"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// LockoutStatus is returned by RecordFailedLogin.
type LockoutStatus struct {
	Locked            bool      `json:"locked"`
	RemainingAttempts int       `json:"remainingAttempts"`
	LockUntil         time.Time `json:"lockUntil"` // zero unless Locked
}

// Config holds the lockout and session policy.
type Config struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	SessionTimeout   time.Duration
}

type lockoutRecord struct {
	failures  []time.Time
	lockUntil time.Time
}

// Manager implements lockouts and sessions. It is safe for concurrent use.
type Manager struct {
	cfg     Config
	audit   *audit.Trail
	metrics *metrics.Sink
	logger  *slog.Logger
	now     func() time.Time
	random  io.Reader

	lockMu   sync.Mutex
	lockouts map[string]*lockoutRecord

	sessMu   sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(cfg Config, trail *audit.Trail, sink *metrics.Sink, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		audit:    trail,
		metrics:  sink,
		logger:   logger,
		now:      time.Now,
		random:   rand.Reader,
		lockouts: make(map[string]*lockoutRecord),
		sessions: make(map[string]*Session),
	}
}

// SetClock replaces the time source. Tests use it to step through
// lockout and session windows without sleeping.
func (m *Manager) SetClock(now func() time.Time) {
	m.lockMu.Lock()
	m.sessMu.Lock()
	m.now = now
	m.sessMu.Unlock()
	m.lockMu.Unlock()
}

// =========================================================================
// LOCKOUT
// =========================================================================

// RecordFailedLogin counts one failed login for id.
func (m *Manager) RecordFailedLogin(id string) LockoutStatus {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	now := m.now()
	rec, ok := m.lockouts[id]
	if !ok {
		rec = &lockoutRecord{}
		m.lockouts[id] = rec
	}

	if !rec.lockUntil.IsZero() {
		if now.Before(rec.lockUntil) {
			remaining := rec.lockUntil.Sub(now)
			m.audit.Record(audit.LoginAttemptLocked, id,
				fmt.Sprintf("Account locked for %.0fs", remaining.Seconds()))
			return LockoutStatus{Locked: true, LockUntil: rec.lockUntil}
		}
		rec.lockUntil = time.Time{}
		rec.failures = nil
	}

	cutoff := now.Add(-m.cfg.LockoutDuration)
	kept := rec.failures[:0]
	for _, at := range rec.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	rec.failures = append(kept, now)
	attempts := len(rec.failures)

	if attempts >= m.cfg.MaxLoginAttempts {
		rec.lockUntil = now.Add(m.cfg.LockoutDuration)
		m.metrics.Increment("account_locked")
		m.audit.Record(audit.AccountLocked, id,
			fmt.Sprintf("Too many failed attempts: %d", attempts))
		return LockoutStatus{Locked: true, LockUntil: rec.lockUntil}
	}

	m.metrics.Increment("login_failed")
	m.audit.Record(audit.LoginFailed, id,
		fmt.Sprintf("Failed attempt %d/%d", attempts, m.cfg.MaxLoginAttempts))
	return LockoutStatus{RemainingAttempts: m.cfg.MaxLoginAttempts - attempts}
}

// ClearFailedAttempts erases the failure history and any lock for id.
func (m *Manager) ClearFailedAttempts(id string) {
	m.lockMu.Lock()
	delete(m.lockouts, id)
	m.lockMu.Unlock()

	m.audit.Record(audit.LoginSuccess, id, "Cleared failed attempts")
}

// IsLocked reports whether id is locked and for how much longer.
// An expired lock is cleared together with the failure history.
func (m *Manager) IsLocked(id string) (bool, time.Duration) {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	rec, ok := m.lockouts[id]
	if !ok || rec.lockUntil.IsZero() {
		return false, 0
	}
	now := m.now()
	if now.Before(rec.lockUntil) {
		return true, rec.lockUntil.Sub(now)
	}
	delete(m.lockouts, id)
	return false, 0
}

// =========================================================================
// SESSIONS
// =========================================================================

// CreateSession starts a session for owner and returns its token.
func (m *Manager) CreateSession(owner string, role Role) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(m.random, salt); err != nil {
		return "", fmt.Errorf("security: reading session salt: %w", err)
	}

	now := m.now()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%x", owner, role, now.UnixNano(), salt)))
	token := hex.EncodeToString(sum[:])

	m.sessMu.Lock()
	m.sessions[token] = &Session{
		Token:        token,
		Owner:        owner,
		Role:         role,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.sessMu.Unlock()

	m.metrics.Increment("session_created")
	m.audit.Record(audit.SessionCreated, owner, "Session: "+shortToken(token))
	return token, nil
}

// ValidateSession returns a copy of the session if token is active, and
// refreshes its last activity. An idle session past the timeout is removed.
func (m *Manager) ValidateSession(token string) (Session, bool) {
	m.sessMu.Lock()
	sess, ok := m.sessions[token]
	if !ok {
		m.sessMu.Unlock()
		return Session{}, false
	}

	now := m.now()
	if now.Sub(sess.LastActivity) > m.cfg.SessionTimeout {
		delete(m.sessions, token)
		m.sessMu.Unlock()
		m.audit.Record(audit.SessionTimeout, sess.Owner, "Session: "+shortToken(token))
		return Session{}, false
	}

	sess.LastActivity = now
	out := *sess
	m.sessMu.Unlock()
	return out, true
}

// DestroySession removes a session. Unknown tokens are ignored.
func (m *Manager) DestroySession(token string) {
	m.sessMu.Lock()
	sess, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
	}
	m.sessMu.Unlock()

	if ok {
		m.audit.Record(audit.SessionDestroyed, sess.Owner, "Session: "+shortToken(token))
	}
}

// SweepSessions removes every idle-expired session and returns how many.
func (m *Manager) SweepSessions() int {
	m.sessMu.Lock()
	now := m.now()
	var expired []*Session
	for token, sess := range m.sessions {
		if now.Sub(sess.LastActivity) > m.cfg.SessionTimeout {
			delete(m.sessions, token)
			expired = append(expired, sess)
		}
	}
	m.sessMu.Unlock()

	for _, sess := range expired {
		m.audit.Record(audit.SessionTimeout, sess.Owner, "Session: "+shortToken(sess.Token))
	}
	if len(expired) > 0 {
		m.logger.Info("expired sessions swept", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// ActiveSessions is the number of sessions currently held.
func (m *Manager) ActiveSessions() int {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()
	return len(m.sessions)
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

// =========================================================================
// INPUT HYGIENE
// =========================================================================

// SanitizeInput truncates text to maxLength runes, strips control
// characters other than newline and tab, and trims surrounding whitespace.
func SanitizeInput(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		text = string([]rune(text)[:maxLength])
	}

	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	return strings.TrimSpace(text)
}

// ValidateEmail reports whether text looks like an email address.
func ValidateEmail(text string) bool {
	return emailPattern.MatchString(text)
}

// ValidatePasswordStrength requires 8+ characters with upper, lower and digit.
func ValidatePasswordStrength(text string) (bool, string) {
	if utf8.RuneCountInString(text) < minPasswordLength {
		return false, PasswordTooShort
	}

	var upper, lower, digit bool
	for _, r := range text {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return false, PasswordTooWeak
	}
	return true, PasswordStrong
}
