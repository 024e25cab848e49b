package store

import (
	"context"

	"github.com/lithammer/shortuuid/v4"
)

// OrderStatus is the lifecycle state of a cookbook order.
type OrderStatus string

const (
	// OrderStatusPending is a submitted order awaiting processing.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing is an order with recipe synthesis in flight.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusCompleted is a fully synthesized order.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusFailed is an order whose processing failed.
	OrderStatusFailed OrderStatus = "FAILED"
)

// OrderItem is one requested recipe in a cookbook order.
type OrderItem struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// Recipe is a synthesized recipe belonging to an order.
type Recipe struct {
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	Servings     int      `json:"servings,omitempty"`
}

// Order is a cookbook order. Items holds the requested recipes, Recipes
// the synthesized results.
type Order struct {
	UID           string      `json:"uid"`
	CustomerEmail string      `json:"customer_email"`
	Status        OrderStatus `json:"status"`
	Items         []OrderItem `json:"items"`
	Recipes       []Recipe    `json:"recipes,omitempty"`
	CreatedTs     int64       `json:"created_ts"`
	UpdatedTs     int64       `json:"updated_ts"`
}

// NewOrderUID generates an order identifier.
func NewOrderUID() string {
	return "ord_" + shortuuid.New()
}

// GetOrder returns the order with the given uid, or nil if absent.
func (s *Store) GetOrder(ctx context.Context, uid string) (*Order, error) {
	if cached, ok := s.orderCache.Get(uid); ok {
		if order, ok := cached.(*Order); ok {
			return order, nil
		}
	}

	order, err := s.driver.GetOrder(ctx, uid)
	if err != nil {
		return nil, err
	}
	if order != nil {
		s.orderCache.Set(uid, order)
	}
	return order, nil
}

// UpsertOrder creates or updates an order.
func (s *Store) UpsertOrder(ctx context.Context, upsert *Order) (*Order, error) {
	order, err := s.driver.UpsertOrder(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.orderCache.Set(order.UID, order)
	return order, nil
}

// ListOrdersByCustomer returns the customer's orders, newest first.
func (s *Store) ListOrdersByCustomer(ctx context.Context, email string) ([]*Order, error) {
	return s.driver.ListOrdersByCustomer(ctx, email)
}
