package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/platform/db"
)

// Repository defines ledger entry data access.
type Repository interface {
	CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error)
	// CreateEntryBatch inserts all entries in one transaction. A failed
	// insert rolls back the whole batch so an installment group is never
	// left partial.
	CreateEntryBatch(ctx context.Context, inputs []CreateEntryInput) ([]Entry, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	UpdateEntry(ctx context.Context, id int64, input UpdateEntryInput) (Entry, error)
	SoftDeleteEntry(ctx context.Context, id int64) error

	// DerivedBalance sums non-deleted PAID entries for the account, signed
	// by kind, anchored by the latest period lock at or before asOf. A nil
	// asOf means "as of now" with no date bound.
	DerivedBalance(ctx context.Context, accountID int64, asOf *time.Time) (money.Money, error)
	// LatestLockEnd returns the period end of the account's most recent
	// period lock, or nil when the account was never closed.
	LatestLockEnd(ctx context.Context, accountID int64) (*time.Time, error)
}

const entryColumns = `id, description, amount_cents, kind, category, occurred_on, status,
	account_id, card_id, is_locked, group_id, installment_index, installment_total,
	bill_id, deleted_at, created_at, updated_at`

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var cents int64
	var occurredOn time.Time
	err := row.Scan(&e.ID, &e.Description, &cents, &e.Kind, &e.Category, &occurredOn, &e.Status,
		&e.AccountID, &e.CardID, &e.IsLocked, &e.GroupID, &e.InstallmentIndex, &e.InstallmentTotal,
		&e.BillID, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Amount = money.FromCents(cents)
	e.OccurredOn = occurredOn
	return e, nil
}

func insertEntry(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, input CreateEntryInput) (Entry, error) {
	row := q.QueryRow(ctx, `INSERT INTO ledger_entries
	(description, amount_cents, kind, category, occurred_on, status, account_id, card_id,
	 is_locked, group_id, installment_index, installment_total, bill_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
RETURNING `+entryColumns,
		input.Description, input.Amount.Cents(), input.Kind, input.Category, input.OccurredOn,
		input.Status, input.AccountID, input.CardID, input.IsLocked, input.GroupID,
		input.InstallmentIndex, input.InstallmentTotal, input.BillID)
	return scanEntry(row)
}

func (r *pgRepository) CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error) {
	return insertEntry(ctx, r.pool, input)
}

func (r *pgRepository) CreateEntryBatch(ctx context.Context, inputs []CreateEntryInput) ([]Entry, error) {
	entries := make([]Entry, 0, len(inputs))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, input := range inputs {
			e, err := insertEntry(ctx, tx, input)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *pgRepository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *pgRepository) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if filter.AccountID != nil {
		add("account_id = $%d", *filter.AccountID)
	}
	if filter.CardID != nil {
		add("card_id = $%d", *filter.CardID)
	}
	if filter.From != nil {
		add("occurred_on >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("occurred_on <= $%d", *filter.To)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.OnlyUnlocked {
		conds = append(conds, "is_locked = FALSE")
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_on, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpdateEntry(ctx context.Context, id int64, input UpdateEntryInput) (Entry, error) {
	var cents *int64
	if input.Amount != nil {
		c := input.Amount.Cents()
		cents = &c
	}
	row := r.pool.QueryRow(ctx, `UPDATE ledger_entries SET
	description = COALESCE($2, description),
	amount_cents = COALESCE($3, amount_cents),
	category = COALESCE($4, category),
	occurred_on = COALESCE($5, occurred_on),
	status = COALESCE($6, status),
	updated_at = NOW()
WHERE id = $1 AND is_locked = FALSE AND deleted_at IS NULL
RETURNING `+entryColumns,
		id, input.Description, cents, input.Category, input.OccurredOn, input.Status)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *pgRepository) SoftDeleteEntry(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE ledger_entries SET deleted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND is_locked = FALSE AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *pgRepository) DerivedBalance(ctx context.Context, accountID int64, asOf *time.Time) (money.Money, error) {
	// Anchor on the latest period lock so the sum only covers movement
	// after the confirmed snapshot.
	query := `
WITH anchor AS (
	SELECT period_end, confirmed_cents
	FROM period_locks
	WHERE account_id = $1 AND ($2::date IS NULL OR period_end <= $2)
	ORDER BY period_end DESC
	LIMIT 1
)
SELECT
	COALESCE((SELECT confirmed_cents FROM anchor), 0) +
	COALESCE(SUM(CASE e.kind WHEN 'INCOME' THEN e.amount_cents WHEN 'EXPENSE' THEN -e.amount_cents ELSE 0 END), 0)
FROM ledger_entries e
WHERE e.account_id = $1
  AND e.status = 'PAID'
  AND e.deleted_at IS NULL
  AND ($2::date IS NULL OR e.occurred_on <= $2)
  AND e.occurred_on > COALESCE((SELECT period_end FROM anchor), '-infinity'::date)`
	var cents int64
	if err := r.pool.QueryRow(ctx, query, accountID, asOf).Scan(&cents); err != nil {
		return 0, err
	}
	return money.FromCents(cents), nil
}

func (r *pgRepository) LatestLockEnd(ctx context.Context, accountID int64) (*time.Time, error) {
	var end time.Time
	err := r.pool.QueryRow(ctx, `SELECT period_end FROM period_locks WHERE account_id=$1 ORDER BY period_end DESC LIMIT 1`, accountID).Scan(&end)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &end, nil
}
