// Package middleware holds the echo middleware for the public API:
// bearer-token authentication, per-request session binding and keyed
// rate limiting.
package middleware

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/store"
)

// Echo context keys populated by the middleware chain.
const (
	ContextKeyEmail   = "auth.email"
	ContextKeyAPIKey  = "auth.api_key"
	ContextKeySession = "session"
	ContextKeyScope   = "scope"
)

// APIKeyClaims is the JWT payload issued to customers. The api_key
// claim carries the raw key; only its bcrypt hash is stored.
type APIKeyClaims struct {
	Email  string `json:"email"`
	APIKey string `json:"api_key,omitempty"`
	jwt.RegisteredClaims
}

// CustomerStore looks customers up for API key verification.
type CustomerStore interface {
	GetCustomerByEmail(ctx context.Context, email string) (*store.Customer, error)
}

// Auth returns middleware that authenticates requests with a
// Bearer JWT signed with secret. On success the customer email and API
// key are placed on the request context for downstream middleware.
// When customers is non-nil, the presented API key is additionally
// verified against the customer's stored hash.
func Auth(secret string, customers CustomerStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearer(c.Request().Header.Get("Authorization"))
			if token == "" {
				return errs.Unauthorized("missing bearer token")
			}

			claims := &APIKeyClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				return errs.Unauthorized("invalid token")
			}
			if claims.Email == "" {
				return errs.Unauthorized("token carries no email")
			}

			if customers != nil && claims.APIKey != "" {
				customer, err := customers.GetCustomerByEmail(c.Request().Context(), claims.Email)
				if err != nil {
					return errs.ServiceUnavailable("customer lookup failed", err)
				}
				if customer == nil || !customer.VerifyAPIKey(claims.APIKey) {
					return errs.Unauthorized("api key rejected")
				}
			}

			c.Set(ContextKeyEmail, claims.Email)
			c.Set(ContextKeyAPIKey, claims.APIKey)
			return next(c)
		}
	}
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// EmailFrom returns the authenticated customer email, if any.
func EmailFrom(c echo.Context) string {
	email, _ := c.Get(ContextKeyEmail).(string)
	return email
}

// APIKeyFrom returns the presented API key, if any.
func APIKeyFrom(c echo.Context) string {
	key, _ := c.Get(ContextKeyAPIKey).(string)
	return key
}
