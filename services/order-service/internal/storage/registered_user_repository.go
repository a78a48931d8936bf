package storage

import (
	"context"

	"github.com/arman-khondker/shopstream/libs/db"
)

// RegisteredUserRepository records which user IDs are known to the order
// service. Rows are written by the coordinator and read when placing
// orders; they are never updated or deleted.
type RegisteredUserRepository struct {
	pool *db.Pool
}

func NewRegisteredUserRepository(pool *db.Pool) *RegisteredUserRepository {
	return &RegisteredUserRepository{pool: pool}
}

// InsertIfAbsent registers a user ID. A redelivered registration event
// hits the conflict clause and reports inserted=false without an error.
func (r *RegisteredUserRepository) InsertIfAbsent(ctx context.Context, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO registered_users (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RegisteredUserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM registered_users WHERE user_id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
