package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines masterdata persistence.
type Repository interface {
	CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	CreateCard(ctx context.Context, input CreateCardInput) (Card, error)
	GetCard(ctx context.Context, id int64) (Card, error)
	ListCards(ctx context.Context) ([]Card, error)
	UpdateCard(ctx context.Context, id int64, input UpdateCardInput) (Card, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	now := time.Now()
	var acc Account
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (name, created_at, updated_at) VALUES ($1, $2, $2)
RETURNING id, name, created_at, updated_at`, input.Name, now).
		Scan(&acc.ID, &acc.Name, &acc.CreatedAt, &acc.UpdatedAt)
	return acc, err
}

func (r *pgRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM accounts WHERE id=$1`, id).
		Scan(&acc.ID, &acc.Name, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return acc, err
}

func (r *pgRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r *pgRepository) CreateCard(ctx context.Context, input CreateCardInput) (Card, error) {
	now := time.Now()
	var c Card
	err := r.pool.QueryRow(ctx, `INSERT INTO cards (name, closing_day, due_day, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING id, name, closing_day, due_day, created_at, updated_at`,
		input.Name, input.ClosingDay, input.DueDay, now).
		Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *pgRepository) GetCard(ctx context.Context, id int64) (Card, error) {
	var c Card
	err := r.pool.QueryRow(ctx, `SELECT id, name, closing_day, due_day, created_at, updated_at FROM cards WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, ErrCardNotFound
	}
	return c, err
}

func (r *pgRepository) ListCards(ctx context.Context) ([]Card, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, closing_day, due_day, created_at, updated_at FROM cards ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpdateCard(ctx context.Context, id int64, input UpdateCardInput) (Card, error) {
	var c Card
	err := r.pool.QueryRow(ctx, `UPDATE cards SET
	name = COALESCE($2, name),
	closing_day = COALESCE($3, closing_day),
	due_day = COALESCE($4, due_day),
	updated_at = NOW()
WHERE id = $1
RETURNING id, name, closing_day, due_day, created_at, updated_at`,
		id, input.Name, input.ClosingDay, input.DueDay).
		Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, ErrCardNotFound
	}
	return c, err
}
