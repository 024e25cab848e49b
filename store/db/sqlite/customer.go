package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthfire/cookforge/store"
)

func (d *DB) UpsertCustomer(ctx context.Context, upsert *store.Customer) (*store.Customer, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now

	args := []any{upsert.Email, upsert.Name, upsert.APIKeyHash, upsert.Credits, upsert.CreatedTs, upsert.UpdatedTs}
	stmt := `INSERT INTO customer (email, name, api_key_hash, credits, created_ts, updated_ts)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (email)
		DO UPDATE SET
			name = EXCLUDED.name,
			api_key_hash = EXCLUDED.api_key_hash,
			credits = EXCLUDED.credits,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	return upsert, nil
}

func (d *DB) GetCustomerByEmail(ctx context.Context, email string) (*store.Customer, error) {
	query := `SELECT email, name, api_key_hash, credits, created_ts, updated_ts
		FROM customer WHERE email = ?`

	var customer store.Customer
	err := d.db.QueryRowContext(ctx, query, email).Scan(
		&customer.Email, &customer.Name, &customer.APIKeyHash, &customer.Credits, &customer.CreatedTs, &customer.UpdatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}
