package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"counterserve/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save writes the whole order record, items included. The order is always
// read-modify-written as a unit; there is no field-level update path.
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, status, total, paypal_ref, stripe_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			paypal_ref = EXCLUDED.paypal_ref,
			stripe_ref = EXCLUDED.stripe_ref,
			updated_at = EXCLUDED.updated_at
	`, order.ID, order.OrderNumber, order.Status, order.Total(),
		order.PayPalRef, order.StripeRef, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, item_ref, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, item.ItemRef, item.Name, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `
		SELECT id, order_number, status, COALESCE(paypal_ref, ''), COALESCE(stripe_ref, ''), created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)
}

func (r *OrderRepository) GetByProviderRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Order, error) {
	column := "paypal_ref"
	if provider == domain.ProviderStripe {
		column = "stripe_ref"
	}

	return r.getOne(ctx, `
		SELECT id, order_number, status, COALESCE(paypal_ref, ''), COALESCE(stripe_ref, ''), created_at, updated_at
		FROM orders
		WHERE `+column+` = $1
	`, ref)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&order.ID, &order.OrderNumber, &order.Status,
		&order.PayPalRef, &order.StripeRef,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_ref, name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ItemRef, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	return err
}

// TopOrderNumberSince returns the highest order number assigned to any order
// updated after the given time, or 0 when the window is empty.
func (r *OrderRepository) TopOrderNumberSince(ctx context.Context, since time.Time) (int, error) {
	var top sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(order_number)
		FROM orders
		WHERE updated_at > $1
	`, since).Scan(&top)
	if err != nil {
		return 0, err
	}

	if !top.Valid {
		return 0, nil
	}
	return int(top.Int64), nil
}

// ListByStatusUpdatedAfter returns orders in any of the given statuses
// whose last update falls after the given time, newest first.
func (r *OrderRepository) ListByStatusUpdatedAfter(ctx context.Context, statuses []domain.OrderStatus, after time.Time) ([]domain.Order, error) {
	set := make([]string, len(statuses))
	for i, s := range statuses {
		set[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, status, COALESCE(paypal_ref, ''), COALESCE(stripe_ref, ''), created_at, updated_at
		FROM orders
		WHERE status = ANY($1) AND updated_at > $2
		ORDER BY updated_at DESC
	`, pq.Array(set), after)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.Status,
			&order.PayPalRef, &order.StripeRef, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, item_ref, name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ItemRef, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// GetMenuItem resolves a priced catalog entry at cart-add time. Catalog
// management itself lives elsewhere; this is a read-only price lookup.
func (r *OrderRepository) GetMenuItem(ctx context.Context, itemRef string) (*domain.OrderItem, error) {
	item := &domain.OrderItem{ItemRef: itemRef}

	err := r.db.QueryRowContext(ctx, `
		SELECT name, price
		FROM menu_items
		WHERE id = $1
	`, itemRef).Scan(&item.Name, &item.UnitPrice)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return item, nil
}
