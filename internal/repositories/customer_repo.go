package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/models"
)

type CustomerRepo struct {
	pool *pgxpool.Pool
}

func NewCustomerRepo(pool *pgxpool.Pool) *CustomerRepo {
	return &CustomerRepo{pool: pool}
}

func (r *CustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, created_at, last_active_at
		FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.CreatedAt, &c.LastActiveAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingerr.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepo) UpsertByEmail(ctx context.Context, email string, firstName, lastName *string) (*models.Customer, error) {
	var c models.Customer
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (email, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			first_name = COALESCE(EXCLUDED.first_name, customers.first_name),
			last_name = COALESCE(EXCLUDED.last_name, customers.last_name),
			last_active_at = now()
		RETURNING id, email, first_name, last_name, created_at, last_active_at
	`, email, firstName, lastName).Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.CreatedAt, &c.LastActiveAt,
	)
	return &c, err
}
