package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/session"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, email, apiKey string) string {
	t.Helper()
	claims := &APIKeyClaims{
		Email:  email,
		APIKey: apiKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authedRequest(token string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func TestAuth(t *testing.T) {
	e := echo.New()
	handler := Auth(testSecret, nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, EmailFrom(c))
	})

	t.Run("valid token", func(t *testing.T) {
		req, rec := authedRequest(signToken(t, testSecret, "cook@example.com", "key-123"))
		c := e.NewContext(req, rec)

		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cook@example.com", rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		req, rec := authedRequest("")
		c := e.NewContext(req, rec)

		err := handler(c)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		req, rec := authedRequest(signToken(t, "other-secret", "cook@example.com", ""))
		c := e.NewContext(req, rec)

		err := handler(c)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeUnauthorized))
	})

	t.Run("token without email", func(t *testing.T) {
		req, rec := authedRequest(signToken(t, testSecret, "", ""))
		c := e.NewContext(req, rec)

		err := handler(c)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeUnauthorized))
	})
}

func newBindingManager() *session.Manager {
	return session.NewManager(session.ManagerConfig{
		Orders:     session.NewMockOrderStore(),
		Customers:  session.NewMockCustomerStore(),
		Sink:       session.NewMockSink(),
		DefaultTTL: time.Minute,
	})
}

func TestSessionBinding(t *testing.T) {
	e := echo.New()
	mgr := newBindingManager()
	factory := session.NewFactory()

	var boundSession *session.Session
	handler := SessionBinding(mgr, factory, nil)(func(c echo.Context) error {
		boundSession = SessionFrom(c)
		require.NotNil(t, boundSession)
		require.NotNil(t, ScopeFrom(c))
		assert.True(t, boundSession.HasScope(ScopeFrom(c).ID))
		return c.NoContent(http.StatusOK)
	})

	t.Run("binds by email and echoes session id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(ContextKeyEmail, "cook@example.com")

		require.NoError(t, handler(c))
		require.NotNil(t, boundSession)
		assert.Equal(t, boundSession.ID, rec.Header().Get(HeaderSessionID))
		assert.Zero(t, boundSession.ScopeCount(), "request scope detached after handler")
	})

	t.Run("same identity shares a session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(ContextKeyEmail, "cook@example.com")

		first := boundSession
		require.NoError(t, handler(c))
		assert.Same(t, first, boundSession)
	})

	t.Run("rejoins by session id header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderSessionID, boundSession.ID)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		first := boundSession
		require.NoError(t, handler(c))
		assert.Same(t, first, boundSession)
	})

	t.Run("unknown session id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderSessionID, "not-a-session")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler(c)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
	})

	t.Run("no identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler(c)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeUnauthorized))
	})

	t.Run("binds by api key when presented", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(ContextKeyEmail, "keyed@example.com")
		c.Set(ContextKeyAPIKey, "key-456")

		require.NoError(t, handler(c))
		assert.Equal(t, "key-456", boundSession.APIKeyValue())
	})
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(1, 2)
	handler := RateLimit(rl)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	allowed := 0
	var limited error
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(ContextKeyEmail, "burst@example.com")

		if err := handler(c); err != nil {
			limited = err
		} else {
			allowed++
		}
	}

	assert.Equal(t, 2, allowed, "burst of two then limited")
	require.Error(t, limited)
	assert.True(t, errs.IsCode(limited, errs.CodeRateLimitExceeded))
}
