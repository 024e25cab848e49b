// Package order drives a cookbook order through its lifecycle: load,
// synthesize recipes under the customer's credit budget, settle the
// final status and charge the credits spent.
package order

import (
	"context"
	"log/slog"
	"time"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/session"
	"github.com/hearthfire/cookforge/store"
)

// OrderStore persists orders across lifecycle transitions.
type OrderStore interface {
	UpsertOrder(ctx context.Context, upsert *store.Order) (*store.Order, error)
}

// CustomerStore loads and charges customers.
type CustomerStore interface {
	GetCustomerByEmail(ctx context.Context, email string) (*store.Customer, error)
	UpsertCustomer(ctx context.Context, upsert *store.Customer) (*store.Customer, error)
}

// Synthesizer produces recipes for an order under a credit budget.
type Synthesizer interface {
	Synthesize(ctx context.Context, parent *session.Scope, sess *session.Session, order *store.Order, credits int32) ([]store.Recipe, error)
}

// ProcessorConfig wires the processor's collaborators.
type ProcessorConfig struct {
	Manager     *session.Manager
	Orders      OrderStore
	Customers   CustomerStore
	Synthesizer Synthesizer
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Processor runs cookbook orders end to end.
type Processor struct {
	manager     *session.Manager
	orders      OrderStore
	customers   CustomerStore
	synthesizer Synthesizer
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Processor{
		manager:     cfg.Manager,
		orders:      cfg.Orders,
		customers:   cfg.Customers,
		synthesizer: cfg.Synthesizer,
		logger:      logger,
		metrics:     metrics,
	}
}

// Process runs the order identified by orderID under the given scope.
// It resolves the order's session, marks the order PROCESSING,
// synthesizes recipes bounded by the customer's remaining credits,
// then settles the order COMPLETED or FAILED and charges one credit
// per synthesized recipe. The session is flagged for immediate expiry
// so it persists as soon as the caller's scope detaches.
func (p *Processor) Process(ctx context.Context, scope *session.Scope, orderID string) (*store.Order, error) {
	start := time.Now()

	sess, err := p.manager.GetSessionByOrder(ctx, orderID, scope.ID)
	if err != nil {
		return nil, err
	}
	defer sess.ExpireImmediately()

	order := sess.Order()
	if order == nil {
		return nil, errs.InvariantViolation("order session carries no order")
	}

	customer, err := p.customers.GetCustomerByEmail(ctx, order.CustomerEmail)
	if err != nil {
		return nil, errs.ServiceUnavailable("load customer", err)
	}
	if customer == nil {
		return nil, errs.NotFoundf("customer %s not found", order.CustomerEmail)
	}

	order.Status = store.OrderStatusProcessing
	order.UpdatedTs = time.Now().Unix()
	if _, err := p.orders.UpsertOrder(ctx, order); err != nil {
		return nil, errs.ServiceUnavailable("mark order processing", err)
	}

	recipes, synthErr := p.synthesizer.Synthesize(ctx, scope, sess, order, customer.Credits)
	if synthErr != nil {
		p.logger.Error("order synthesis failed",
			slog.String(observability.LogFieldOrderID, order.UID),
			slog.String("error", synthErr.Error()))
		p.settle(ctx, order, nil, store.OrderStatusFailed)
		return order, synthErr
	}

	p.settle(ctx, order, recipes, store.OrderStatusCompleted)

	if len(recipes) > 0 {
		customer.Credits -= int32(len(recipes))
		if customer.Credits < 0 {
			customer.Credits = 0
		}
		customer.UpdatedTs = time.Now().Unix()
		if _, err := p.customers.UpsertCustomer(ctx, customer); err != nil {
			// The recipes are already written; a failed charge is
			// logged rather than failing the order.
			p.logger.Error("charge credits failed",
				slog.String(observability.LogFieldOrderID, order.UID),
				slog.String("error", err.Error()))
		}
	}

	if sc, ok := observability.FromContext(ctx); ok {
		sc.Info("order processed",
			slog.String(observability.LogFieldOrderID, order.UID),
			slog.Int("recipes", len(recipes)))
	} else {
		p.logger.Info("order processed",
			slog.String(observability.LogFieldOrderID, order.UID),
			slog.Int("recipes", len(recipes)),
			slog.Duration(observability.LogFieldDuration, time.Since(start)))
	}
	return order, nil
}

func (p *Processor) settle(ctx context.Context, order *store.Order, recipes []store.Recipe, status store.OrderStatus) {
	order.Recipes = recipes
	order.Status = status
	order.UpdatedTs = time.Now().Unix()
	if _, err := p.orders.UpsertOrder(ctx, order); err != nil {
		p.metrics.RecordPersistFailure()
		p.logger.Error("settle order failed",
			slog.String(observability.LogFieldOrderID, order.UID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}
