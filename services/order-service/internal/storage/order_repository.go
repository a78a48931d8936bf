package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/arman-khondker/shopstream/libs/db"
)

type OrderStatus string

const (
	StatusPending OrderStatus = "Pending"
	StatusPaid    OrderStatus = "Paid"
	StatusFailed  OrderStatus = "Failed"
)

// TransitionResult classifies the outcome of a guarded status update.
type TransitionResult int

const (
	// TransitionApplied: the order was Pending and is now in the new status.
	TransitionApplied TransitionResult = iota
	// TransitionNotPending: the order exists but is already terminal.
	// Harmless under at-least-once delivery.
	TransitionNotPending
	// TransitionNotFound: no such order.
	TransitionNotFound
)

type Order struct {
	ID         string
	UserID     string
	TotalPrice float64
	Status     OrderStatus
}

type OrderItem struct {
	ProductID string
	Quantity  int
	Price     float64
}

type OrderRepository struct {
	pool *db.Pool
}

func NewOrderRepository(pool *db.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// TransitionIfPending moves an order out of Pending in a single
// conditional UPDATE. The status check and the write are one statement,
// so a redelivered or reordered event for the same order can never
// overwrite a terminal status. The follow-up read only classifies a
// zero-row result.
func (r *OrderRepository) TransitionIfPending(ctx context.Context, orderID string, next OrderStatus) (TransitionResult, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'Pending'
	`, orderID, next)
	if err != nil {
		return TransitionNotFound, err
	}
	if tag.RowsAffected() > 0 {
		return TransitionApplied, nil
	}

	_, found, err := r.GetStatus(ctx, orderID)
	if err != nil {
		return TransitionNotFound, err
	}
	if !found {
		return TransitionNotFound, nil
	}
	return TransitionNotPending, nil
}

// GetStatus reads the current status. A missing order is reported via
// found=false, not an error.
func (r *OrderRepository) GetStatus(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	var status OrderStatus
	err := r.pool.QueryRow(ctx, `
		SELECT status FROM orders WHERE id = $1
	`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// Create inserts an order in Pending state together with its items,
// all inside the caller's transaction.
func (r *OrderRepository) Create(ctx context.Context, tx pgx.Tx, order Order, items []OrderItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_price, status)
		VALUES ($1, $2, $3, $4)
	`, order.ID, order.UserID, order.TotalPrice, StatusPending)
	if err != nil {
		return err
	}
	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
		`, order.ID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (Order, error) {
	var order Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, total_price, status
		FROM orders
		WHERE id = $1
	`, orderID).Scan(&order.ID, &order.UserID, &order.TotalPrice, &order.Status)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
