package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthfire/cookforge/store"
)

func (d *DB) UpsertOrder(ctx context.Context, upsert *store.Order) (*store.Order, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now

	items, err := json.Marshal(upsert.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order items: %w", err)
	}
	recipes, err := json.Marshal(upsert.Recipes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order recipes: %w", err)
	}

	args := []any{upsert.UID, upsert.CustomerEmail, string(upsert.Status), items, recipes, upsert.CreatedTs, upsert.UpdatedTs}
	stmt := `INSERT INTO cookbook_order (uid, customer_email, status, items, recipes, created_ts, updated_ts)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (uid)
		DO UPDATE SET
			status = EXCLUDED.status,
			items = EXCLUDED.items,
			recipes = EXCLUDED.recipes,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert order: %w", err)
	}

	return upsert, nil
}

func (d *DB) GetOrder(ctx context.Context, uid string) (*store.Order, error) {
	query := `SELECT uid, customer_email, status, items, recipes, created_ts, updated_ts
		FROM cookbook_order WHERE uid = $1`

	order, err := scanOrder(d.db.QueryRowContext(ctx, query, uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (d *DB) ListOrdersByCustomer(ctx context.Context, email string) ([]*store.Order, error) {
	query := `SELECT uid, customer_email, status, items, recipes, created_ts, updated_ts
		FROM cookbook_order WHERE customer_email = $1 ORDER BY updated_ts DESC`

	rows, err := d.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		list = append(list, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*store.Order, error) {
	var (
		order   store.Order
		status  string
		items   []byte
		recipes []byte
	)
	if err := row.Scan(&order.UID, &order.CustomerEmail, &status, &items, &recipes, &order.CreatedTs, &order.UpdatedTs); err != nil {
		return nil, err
	}
	order.Status = store.OrderStatus(status)
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(recipes, &order.Recipes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order recipes: %w", err)
	}
	return &order, nil
}
