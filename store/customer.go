package store

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// Customer is a cookbook customer identified by email.
type Customer struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	APIKeyHash string `json:"-"`
	// Credits is the number of recipe-synthesis credits remaining.
	Credits   int32 `json:"credits"`
	CreatedTs int64 `json:"created_ts"`
	UpdatedTs int64 `json:"updated_ts"`
}

// GetCustomerByEmail returns the customer, or nil if absent.
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	if cached, ok := s.customerCache.Get(email); ok {
		if customer, ok := cached.(*Customer); ok {
			return customer, nil
		}
	}

	customer, err := s.driver.GetCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		s.customerCache.Set(email, customer)
	}
	return customer, nil
}

// UpsertCustomer creates or updates a customer.
func (s *Store) UpsertCustomer(ctx context.Context, upsert *Customer) (*Customer, error) {
	customer, err := s.driver.UpsertCustomer(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.customerCache.Set(customer.Email, customer)
	return customer, nil
}

// HashAPIKey hashes a raw API key for storage.
func HashAPIKey(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether raw matches the customer's stored hash.
func (c *Customer) VerifyAPIKey(raw string) bool {
	if c.APIKeyHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.APIKeyHash), []byte(raw)) == nil
}
