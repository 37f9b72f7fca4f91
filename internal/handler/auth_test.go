package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/handler"
	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/security"
	"github.com/sakif/debugging-platform/internal/service"
)

// MockAuthService implements handler.Authenticator.
type MockAuthService struct {
	Registered   []string
	LoggedOut    []string
	ReturnUser   *model.User
	ReturnResult *service.AuthResult
	ReturnErr    error
}

func (m *MockAuthService) Register(_ context.Context, fullName, email, _, _ string) (*model.User, error) {
	m.Registered = append(m.Registered, email)
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &model.User{ID: "user-1", FullName: fullName, Email: email, PasswordHash: "$2a$secret"}, nil
}

func (m *MockAuthService) Login(context.Context, string, string) (*service.AuthResult, error) {
	return m.ReturnResult, m.ReturnErr
}

func (m *MockAuthService) Logout(token string) {
	m.LoggedOut = append(m.LoggedOut, token)
}

func (m *MockAuthService) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnUser, nil
}

func newAuthHandler(m *MockAuthService) *handler.AuthHandler {
	return handler.NewAuthHandler(m, time.Hour, false, testLogger())
}

func TestAuthHandler_HandleRegister(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		mock := &MockAuthService{}
		h := newAuthHandler(mock)

		body := `{"fullName":"Ada Lovelace","email":"ada@example.com","contactNumber":"123","password":"Secur3Pass"}`
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, []string{"ada@example.com"}, mock.Registered)
		assert.Contains(t, rr.Body.String(), `"fullName":"Ada Lovelace"`)
		assert.NotContains(t, rr.Body.String(), "secret", "password hash must never be serialized")
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock := &MockAuthService{ReturnErr: &apperror.AppError{Err: apperror.ErrConflict, Message: "Email already registered", Field: "email"}}
		h := newAuthHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleRegister(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(`{"email":"ada@example.com"}`)))

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "Email already registered", decodeError(t, rr).Message)
	})

	t.Run("empty body", func(t *testing.T) {
		h := newAuthHandler(&MockAuthService{})

		rr := httptest.NewRecorder()
		h.HandleRegister(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", http.NoBody))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "request body is empty", decodeError(t, rr).Message)
	})
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	t.Run("success sets cookie", func(t *testing.T) {
		mock := &MockAuthService{ReturnResult: &service.AuthResult{
			User:  &model.User{ID: "user-1"},
			Token: "tok-123",
			Role:  security.RoleStudent,
		}}
		h := newAuthHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleLogin(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"a@b.co","password":"x"}`)))

		assert.Equal(t, http.StatusOK, rr.Code)

		var res service.AuthResult
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "tok-123", res.Token)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.SessionCookie, cookies[0].Name)
		assert.Equal(t, "tok-123", cookies[0].Value)
		assert.Equal(t, 3600, cookies[0].MaxAge)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("bad credentials", func(t *testing.T) {
		mock := &MockAuthService{ReturnErr: apperror.Unauthorized(service.MsgInvalidCredentials)}
		h := newAuthHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleLogin(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"a@b.co","password":"x"}`)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid email or password", decodeError(t, rr).Message)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("locked", func(t *testing.T) {
		mock := &MockAuthService{ReturnErr: apperror.Locked(14*time.Minute + 30*time.Second)}
		h := newAuthHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleLogin(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"a@b.co","password":"x"}`)))

		assert.Equal(t, http.StatusLocked, rr.Code)
		assert.Equal(t, "870", rr.Header().Get("Retry-After"))
		assert.Equal(t, "account_locked", decodeError(t, rr).Error)
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	mock := &MockAuthService{}
	h := newAuthHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rr := httptest.NewRecorder()
	h.HandleLogout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"tok-123"}, mock.LoggedOut)
	require.Len(t, rr.Result().Cookies(), 1)
	assert.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)

	// Without a token there is nothing to destroy, but it is not an error.
	rr = httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, mock.LoggedOut, 1)
}

func TestAuthHandler_HandleMe(t *testing.T) {
	t.Run("returns profile", func(t *testing.T) {
		mock := &MockAuthService{ReturnUser: &model.User{ID: "user-1", Email: "ada@example.com"}}
		h := newAuthHandler(mock)

		rr := httptest.NewRecorder()
		h.HandleMe(rr, authed(httptest.NewRequest(http.MethodGet, "/api/me", nil)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"email":"ada@example.com"`)
	})

	t.Run("no session", func(t *testing.T) {
		h := newAuthHandler(&MockAuthService{})

		rr := httptest.NewRecorder()
		h.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("user gone", func(t *testing.T) {
		h := newAuthHandler(&MockAuthService{ReturnErr: apperror.NotFound("user", "user-1")})

		rr := httptest.NewRecorder()
		h.HandleMe(rr, authed(httptest.NewRequest(http.MethodGet, "/api/me", nil)))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
