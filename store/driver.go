package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// Order model related methods.
	UpsertOrder(ctx context.Context, upsert *Order) (*Order, error)
	GetOrder(ctx context.Context, uid string) (*Order, error)
	ListOrdersByCustomer(ctx context.Context, email string) ([]*Order, error)

	// Customer model related methods.
	UpsertCustomer(ctx context.Context, upsert *Customer) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	// ConversationRecord model related methods.
	CreateConversationRecord(ctx context.Context, create *ConversationRecord) (*ConversationRecord, error)
	ListConversationRecords(ctx context.Context, find *FindConversationRecord) ([]*ConversationRecord, error)
}
