// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take primitives and return domain errors (apperror), never
// HTTP types, so the CLI and the HTTP API share the same rules.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/metrics"
	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/repository"
	"github.com/sakif/debugging-platform/internal/security"
)

// Field limits applied by SanitizeInput before anything is stored.
const (
	MaxFullNameLength      = 100
	MaxEmailLength         = 254
	MaxContactNumberLength = 20
)

// MsgInvalidCredentials is deliberately the same for an unknown email and
// a wrong password.
const MsgInvalidCredentials = "Invalid email or password"

// AuthService handles registration, login and logout.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - security   *security.Manager          → lockouts and sessions
//   - metrics    *metrics.Sink              → timings and unexpected failures
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	security  *security.Manager
	metrics   *metrics.Sink
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	sec *security.Manager,
	sink *metrics.Sink,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		security:  sec,
		metrics:   sink,
		logger:    logger,
	}
}

// AuthResult bundles the user and the new session token so the handler
// can respond in one step.
type AuthResult struct {
	User  *model.User   `json:"user"`
	Token string        `json:"token"`
	Role  security.Role `json:"role"`
}

// Register validates and stores a new student account.
func (s *AuthService) Register(ctx context.Context, fullName, email, contactNumber, password string) (*model.User, error) {
	fullName = security.SanitizeInput(fullName, MaxFullNameLength)
	email = normalizeEmail(email)
	contactNumber = security.SanitizeInput(contactNumber, MaxContactNumberLength)

	if fullName == "" {
		return nil, apperror.ValidationFailed("fullName", "full name is required")
	}
	if !security.ValidateEmail(email) {
		return nil, apperror.ValidationFailed("email", "Invalid email format")
	}
	if ok, msg := security.ValidatePasswordStrength(password); !ok {
		return nil, apperror.ValidationFailed("password", msg)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	user := &model.User{
		FullName:      fullName,
		Email:         email,
		ContactNumber: contactNumber,
		PasswordHash:  hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "Email already registered", Field: "email"}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login checks the lockout, verifies the password and opens a session.
//
// The flow per attempt:
//  1. locked? → ErrLocked with the remaining lockout, password not checked
//  2. unknown email or wrong password → RecordFailedLogin (may lock)
//  3. success → ClearFailedAttempts, CreateSession
func (s *AuthService) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	err = track(s.metrics, "login", func() error {
		res, err = s.login(ctx, email, password)
		return err
	})
	return res, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	if locked, remaining := s.security.IsLocked(email); locked {
		s.security.RecordFailedLogin(email)
		return nil, apperror.Locked(remaining)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if user == nil {
		s.passwords.VerifyNothing(password)
		return nil, s.failed(email)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Error("stored password hash is unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, s.failed(email)
	}

	s.security.ClearFailedAttempts(email)

	if s.passwords.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}

	role := security.RoleStudent
	if user.IsAdmin {
		role = security.RoleAdmin
	}
	token, err := s.security.CreateSession(user.ID, role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: creating session for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID), slog.String("role", string(role)))
	return &AuthResult{User: user, Token: token, Role: role}, nil
}

// failed records the attempt and picks the error to return.
func (s *AuthService) failed(email string) error {
	status := s.security.RecordFailedLogin(email)
	if status.Locked {
		return apperror.Locked(s.lockRemaining(email))
	}
	return apperror.Unauthorized(MsgInvalidCredentials)
}

func (s *AuthService) lockRemaining(email string) (remaining time.Duration) {
	_, remaining = s.security.IsLocked(email)
	return remaining
}

func (s *AuthService) rehash(ctx context.Context, user *model.User, password string) {
	hash, err := s.passwords.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", slog.String("userID", user.ID), slog.String("error", err.Error()))
	}
}

// Logout destroys the session. Unknown tokens are ignored.
func (s *AuthService) Logout(token string) {
	s.security.DestroySession(token)
}

// GetUserByID returns the user behind a session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// EnsureAdmin creates the administrator account on first start. An
// existing account is left untouched. An empty password skips bootstrap.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if password == "" {
		s.logger.Warn("ADMIN_PASSWORD not set, admin account not bootstrapped")
		return nil
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: looking up admin: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: hashing admin password: %w", err)
	}
	admin := &model.User{
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("service/auth: creating admin: %w", err)
	}

	s.logger.Info("admin account created", slog.String("email", email))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(security.SanitizeInput(email, MaxEmailLength))
}
