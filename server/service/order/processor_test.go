package order

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/session"
	"github.com/hearthfire/cookforge/store"
)

// fakeSynthesizer returns a fixed number of recipes or an error.
type fakeSynthesizer struct {
	err error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ *session.Scope, _ *session.Session, order *store.Order, credits int32) ([]store.Recipe, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := int(credits)
	if len(order.Items) < n {
		n = len(order.Items)
	}
	recipes := make([]store.Recipe, 0, n)
	for i := 0; i < n; i++ {
		recipes = append(recipes, store.Recipe{Title: order.Items[i].Title, Ingredients: []string{"salt"}})
	}
	return recipes, nil
}

type fixture struct {
	processor *Processor
	manager   *session.Manager
	orders    *session.MockOrderStore
	customers *session.MockCustomerStore
	factory   session.Factory
}

func newFixture(synthErr error) *fixture {
	orders := session.NewMockOrderStore()
	customers := session.NewMockCustomerStore()
	mgr := session.NewManager(session.ManagerConfig{
		Orders:    orders,
		Customers: customers,
		Sink:      session.NewMockSink(),
	})
	processor := NewProcessor(ProcessorConfig{
		Manager:     mgr,
		Orders:      orders,
		Customers:   customers,
		Synthesizer: &fakeSynthesizer{err: synthErr},
	})
	return &fixture{
		processor: processor,
		manager:   mgr,
		orders:    orders,
		customers: customers,
		factory:   session.NewFactory(),
	}
}

func (f *fixture) seed(items, credits int) *store.Order {
	order := &store.Order{UID: store.NewOrderUID(), CustomerEmail: "cook@example.com", Status: store.OrderStatusPending}
	for i := 0; i < items; i++ {
		order.Items = append(order.Items, store.OrderItem{Title: "Dish"})
	}
	f.orders.Put(order)
	f.customers.Put(&store.Customer{Email: "cook@example.com", Credits: int32(credits)})
	return order
}

func TestProcessCompletesOrder(t *testing.T) {
	f := newFixture(nil)
	seeded := f.seed(3, 10)
	scope := f.factory.NewScope()

	processed, err := f.processor.Process(context.Background(), scope, seeded.UID)
	require.NoError(t, err)

	assert.Equal(t, store.OrderStatusCompleted, processed.Status)
	assert.Len(t, processed.Recipes, 3)

	stored, err := f.orders.GetOrder(context.Background(), seeded.UID)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStatusCompleted, stored.Status)

	customer, err := f.customers.GetCustomerByEmail(context.Background(), "cook@example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(7), customer.Credits, "one credit per synthesized recipe")
}

func TestProcessChargesOnlyForSynthesized(t *testing.T) {
	f := newFixture(nil)
	seeded := f.seed(5, 2)
	scope := f.factory.NewScope()

	processed, err := f.processor.Process(context.Background(), scope, seeded.UID)
	require.NoError(t, err)

	assert.Len(t, processed.Recipes, 2)
	customer, err := f.customers.GetCustomerByEmail(context.Background(), "cook@example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(0), customer.Credits)
}

func TestProcessFailedSynthesis(t *testing.T) {
	f := newFixture(errors.New("model exploded"))
	seeded := f.seed(2, 10)
	scope := f.factory.NewScope()

	processed, err := f.processor.Process(context.Background(), scope, seeded.UID)
	require.Error(t, err)
	require.NotNil(t, processed)

	assert.Equal(t, store.OrderStatusFailed, processed.Status)
	assert.Empty(t, processed.Recipes)

	stored, storeErr := f.orders.GetOrder(context.Background(), seeded.UID)
	require.NoError(t, storeErr)
	assert.Equal(t, store.OrderStatusFailed, stored.Status)

	customer, custErr := f.customers.GetCustomerByEmail(context.Background(), "cook@example.com")
	require.NoError(t, custErr)
	assert.Equal(t, int32(10), customer.Credits, "no charge on failure")
}

func TestProcessUnknownOrder(t *testing.T) {
	f := newFixture(nil)
	scope := f.factory.NewScope()

	_, err := f.processor.Process(context.Background(), scope, "ord_missing")
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestProcessFlagsSessionForExpiry(t *testing.T) {
	f := newFixture(nil)
	seeded := f.seed(1, 1)
	scope := f.factory.NewScope()

	_, err := f.processor.Process(context.Background(), scope, seeded.UID)
	require.NoError(t, err)

	sess, err := f.manager.GetSessionByScope(scope.ID)
	require.NoError(t, err)
	assert.True(t, sess.ExpiresImmediately())
}
