package session

import (
	"context"
	"sync"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/store"
)

// MockOrderStore is an in-memory OrderStore for tests and local runs.
type MockOrderStore struct {
	mu     sync.Mutex
	orders map[string]*store.Order
	// FailUpserts makes every UpsertOrder fail when set.
	FailUpserts bool
}

// NewMockOrderStore creates an empty in-memory order store.
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{orders: make(map[string]*store.Order)}
}

func (m *MockOrderStore) GetOrder(_ context.Context, uid string) (*store.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[uid], nil
}

func (m *MockOrderStore) UpsertOrder(_ context.Context, upsert *store.Order) (*store.Order, error) {
	if m.FailUpserts {
		return nil, errs.ServiceUnavailable("order store down", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[upsert.UID] = upsert
	return upsert, nil
}

// Put seeds an order directly.
func (m *MockOrderStore) Put(order *store.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.UID] = order
}

// MockCustomerStore is an in-memory CustomerStore for tests.
type MockCustomerStore struct {
	mu        sync.Mutex
	customers map[string]*store.Customer
}

// NewMockCustomerStore creates an empty in-memory customer store.
func NewMockCustomerStore() *MockCustomerStore {
	return &MockCustomerStore{customers: make(map[string]*store.Customer)}
}

func (m *MockCustomerStore) GetCustomerByEmail(_ context.Context, email string) (*store.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customers[email], nil
}

func (m *MockCustomerStore) UpsertCustomer(_ context.Context, upsert *store.Customer) (*store.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[upsert.Email] = upsert
	return upsert, nil
}

// Put seeds a customer directly.
func (m *MockCustomerStore) Put(customer *store.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customer.Email] = customer
}

// MockSink records conversations written at session end.
type MockSink struct {
	mu       sync.Mutex
	written  []*Conversation
	sessions []string
	// Err is returned from every write when set.
	Err error
}

// NewMockSink creates an empty sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) WriteConversation(_ context.Context, conv *Conversation, sess *Session) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, conv)
	m.sessions = append(m.sessions, sess.ID)
	return nil
}

// Written returns the conversations written so far.
func (m *MockSink) Written() []*Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Conversation, len(m.written))
	copy(out, m.written)
	return out
}
