package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/service"
)

// Authenticator is the part of service.AuthService the auth handler uses.
type Authenticator interface {
	Register(ctx context.Context, fullName, email, contactNumber, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Logout(token string)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler manages registration, login and the current session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create a student account
//   - HandleLogin    → verify credentials, open a session, return its token
//   - HandleLogout   → destroy the session and clear the cookie
//   - HandleMe       → return the logged-in user's profile
type AuthHandler struct {
	auth          Authenticator
	cookieMaxAge  time.Duration
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. cookieMaxAge should match the
// session idle timeout; secureCookies should be true behind HTTPS.
func NewAuthHandler(a Authenticator, cookieMaxAge time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:          a,
		cookieMaxAge:  cookieMaxAge,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type registerRequest struct {
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	ContactNumber string `json:"contactNumber"`
	Password      string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a student account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"fullName": "...", "email": "...", "contactNumber": "...", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.FullName, req.Email, req.ContactNumber, req.Password)
	if err != nil {
		logFailure(h.logger, "register failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin opens a session.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email": "...", "password": "..."}
//
// The token is returned in the body for API clients and also set as an
// HttpOnly cookie for the browser. A locked account answers 423 with a
// Retry-After header.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logFailure(h.logger, "login failed", err)
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, res)
}

// HandleLogout destroys the session.
//
// HTTP: POST /api/auth/logout
//
// Logout is POST, not GET, so a prefetch or a cross-site link cannot end
// somebody's session. Unknown tokens are ignored and still answer 200.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		h.auth.Logout(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the current user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireSession puts the session in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), sess.Owner)
	if err != nil {
		logFailure(h.logger, "HandleMe: user lookup failed", err, slog.String("userID", sess.Owner))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
