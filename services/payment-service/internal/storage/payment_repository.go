package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/arman-khondker/shopstream/libs/db"
)

type Payment struct {
	ID              string
	OrderID         string
	Amount          float64
	Status          string
	GatewayResponse string
}

type PaymentRepository struct {
	pool *db.Pool
}

func NewPaymentRepository(pool *db.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, status, payment_gateway_response)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.OrderID, p.Amount, p.Status, p.GatewayResponse)
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (Payment, error) {
	var p Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, amount, status, payment_gateway_response
		FROM payments
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.GatewayResponse)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
