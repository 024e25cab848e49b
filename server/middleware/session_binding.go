package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/session"
)

// HeaderSessionID lets a client rejoin a live session across requests.
const HeaderSessionID = "X-Session-Id"

// SessionBinding returns middleware that gives every request its own
// scope and binds it to a session for the duration of the request. A
// request carrying X-Session-Id rejoins that session; otherwise the
// session is resolved from the authenticated identity, by API key when
// one was presented and by email otherwise. The scope is detached when
// the request completes, and the session id is echoed back so clients
// can rejoin.
func SessionBinding(mgr *session.Manager, factory session.Factory, logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope := factory.NewScope()

			sess, err := resolveSession(c, mgr, scope.ID)
			if err != nil {
				if errs.IsCode(err, errs.CodeInvalidArgument) {
					return errs.Unauthorized("request carries no identity")
				}
				return err
			}

			defer func() {
				if err := mgr.RemoveScopeFromSession(scope.ID); err != nil {
					logger.Warn("detach request scope failed",
						slog.String(observability.LogFieldScopeID, scope.ID),
						slog.String("error", err.Error()))
				}
			}()

			sc := observability.NewScopeContext(logger, scope.ID).WithSession(sess.ID)
			if email := EmailFrom(c); email != "" {
				sc = sc.WithUser(email)
			}
			req := c.Request()
			c.SetRequest(req.WithContext(observability.WithScopeContext(req.Context(), sc)))

			c.Set(ContextKeyScope, scope)
			c.Set(ContextKeySession, sess)
			c.Response().Header().Set(HeaderSessionID, sess.ID)

			err = next(c)
			sc.Debug("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64(observability.LogFieldDuration, sc.DurationMs()))
			return err
		}
	}
}

func resolveSession(c echo.Context, mgr *session.Manager, scopeID string) (*session.Session, error) {
	if sessionID := c.Request().Header.Get(HeaderSessionID); sessionID != "" {
		sess, err := mgr.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
		if err := mgr.AddScopeToSession(sess, scopeID); err != nil {
			return nil, err
		}
		return sess, nil
	}
	if apiKey := APIKeyFrom(c); apiKey != "" {
		return mgr.GetSessionByAPIKey(apiKey, scopeID)
	}
	return mgr.GetSessionByUserID(EmailFrom(c), scopeID)
}

// ScopeFrom returns the request's scope.
func ScopeFrom(c echo.Context) *session.Scope {
	scope, _ := c.Get(ContextKeyScope).(*session.Scope)
	return scope
}

// SessionFrom returns the request's bound session.
func SessionFrom(c echo.Context) *session.Session {
	sess, _ := c.Get(ContextKeySession).(*session.Session)
	return sess
}
