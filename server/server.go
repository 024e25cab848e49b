// Package server exposes the public HTTP API: cookbook chat, order
// submission and order retrieval. Every request runs under its own
// scope bound to a session; order processing continues in the
// background under a separate root scope after the submitting request
// returns.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/internal/profile"
	"github.com/hearthfire/cookforge/plugin/ai"
	"github.com/hearthfire/cookforge/server/middleware"
	"github.com/hearthfire/cookforge/server/service/order"
	"github.com/hearthfire/cookforge/server/service/recipe"
	"github.com/hearthfire/cookforge/session"
	"github.com/hearthfire/cookforge/store"
)

// Ranker scores candidate recipes against a cookbook theme.
type Ranker interface {
	Rank(ctx context.Context, parent *session.Scope, sess *session.Session, theme string, candidates []recipe.Candidate) ([]recipe.Ranked, error)
}

// processTimeout bounds background order processing.
const processTimeout = 10 * time.Minute

// Config wires the server's collaborators.
type Config struct {
	Profile   *profile.Profile
	Store     *store.Store
	Manager   *session.Manager
	Factory   session.Factory
	Chatter   ai.Chatter
	Ranker    Ranker
	Processor *order.Processor
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Server is the public HTTP API server.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
	manager    *session.Manager
	factory    session.Factory
	chatter    ai.Chatter
	ranker     Ranker
	processor  *order.Processor
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates the server and registers its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	s := &Server{
		profile:   cfg.Profile,
		store:     cfg.Store,
		manager:   cfg.Manager,
		factory:   cfg.Factory,
		chatter:   cfg.Chatter,
		ranker:    cfg.Ranker,
		processor: cfg.Processor,
		logger:    logger,
		metrics:   metrics,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if _, ok := err.(*echo.HTTPError); !ok {
			err = toHTTPError(err)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	e.GET("/healthz", s.healthz)

	limiter := middleware.NewRateLimiter(10, 20)
	api := e.Group("/api/v1",
		middleware.Auth(cfg.Profile.JWTSecret, cfg.Store),
		middleware.RateLimit(limiter),
		middleware.SessionBinding(cfg.Manager, cfg.Factory, logger),
	)
	api.POST("/chat", s.chat)
	api.POST("/recipes/rank", s.rankRecipes)
	api.POST("/orders", s.createOrder)
	api.GET("/orders", s.listOrders)
	api.GET("/orders/:id", s.getOrder)

	s.echoServer = e
	return s
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	s.logger.Info("api server listening", slog.String("addr", addr))
	if err := s.echoServer.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoServer.Shutdown(ctx)
}

// toHTTPError maps coded domain errors onto HTTP statuses.
func toHTTPError(err error) *echo.HTTPError {
	switch errs.CodeOf(err, errs.CodeServiceUnavailable) {
	case errs.CodeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errs.CodeInvalidArgument, errs.CodeInvariantViolation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errs.CodeUnauthorized:
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errs.CodeRateLimitExceeded:
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errs.CodeContextCanceled, errs.CodeTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
}
