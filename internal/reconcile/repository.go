package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/platform/db"
	"github.com/homeledger/homeledger/internal/shared"
)

// Repository defines period close data access.
type Repository interface {
	// LatestLockEnd returns the account's most recent period end, or nil
	// when the account was never closed.
	LatestLockEnd(ctx context.Context, accountID int64) (*time.Time, error)
	ListLocks(ctx context.Context, accountID int64) ([]PeriodLock, error)
	// CalculatedBalance sums the account's full settled history up to and
	// including asOf, signed by kind.
	CalculatedBalance(ctx context.Context, accountID int64, asOf time.Time) (money.Money, error)
	// ClosePeriod writes the adjustment entry, locks history and records
	// the snapshot in one transaction.
	ClosePeriod(ctx context.Context, params CloseParams) (Result, error)
}

const lockColumns = `id, account_id, period_end, confirmed_cents, calculated_cents,
	adjustment_entry_id, entries_locked, created_at`

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

func scanLock(row pgx.Row) (PeriodLock, error) {
	var l PeriodLock
	var confirmed, calculated int64
	err := row.Scan(&l.ID, &l.AccountID, &l.PeriodEnd, &confirmed, &calculated,
		&l.AdjustmentEntryID, &l.EntriesLocked, &l.CreatedAt)
	if err != nil {
		return PeriodLock{}, err
	}
	l.ConfirmedBalance = money.FromCents(confirmed)
	l.CalculatedBalance = money.FromCents(calculated)
	return l, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	var cents int64
	err := row.Scan(&e.ID, &e.Description, &cents, &e.Kind, &e.Category, &e.OccurredOn, &e.Status,
		&e.AccountID, &e.CardID, &e.IsLocked, &e.GroupID, &e.InstallmentIndex, &e.InstallmentTotal,
		&e.BillID, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Amount = money.FromCents(cents)
	return e, nil
}

func (r *pgRepository) LatestLockEnd(ctx context.Context, accountID int64) (*time.Time, error) {
	var end time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT period_end FROM period_locks WHERE account_id=$1 ORDER BY period_end DESC LIMIT 1`,
		accountID).Scan(&end)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &end, nil
}

func (r *pgRepository) ListLocks(ctx context.Context, accountID int64) ([]PeriodLock, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lockColumns+` FROM period_locks WHERE account_id=$1 ORDER BY period_end DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []PeriodLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func (r *pgRepository) CalculatedBalance(ctx context.Context, accountID int64, asOf time.Time) (money.Money, error) {
	var cents int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(
	CASE kind WHEN 'INCOME' THEN amount_cents WHEN 'EXPENSE' THEN -amount_cents ELSE 0 END), 0)
FROM ledger_entries
WHERE account_id = $1
  AND status = $2
  AND deleted_at IS NULL
  AND occurred_on <= $3`, accountID, ledger.StatusPaid, asOf).Scan(&cents)
	if err != nil {
		return 0, err
	}
	return money.FromCents(cents), nil
}

func (r *pgRepository) ClosePeriod(ctx context.Context, params CloseParams) (Result, error) {
	var res Result
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := shared.InsertKeyTx(ctx, tx, params.IdempotencyKey, "reconcile"); err != nil {
			return err
		}

		var adjustmentID *int64
		if params.Diff != 0 {
			kind := ledger.KindIncome
			if params.Diff < 0 {
				kind = ledger.KindExpense
			}
			// Born locked: the adjustment belongs to the period being
			// sealed, not to open history.
			e, err := scanEntry(tx.QueryRow(ctx, `INSERT INTO ledger_entries
	(description, amount_cents, kind, category, occurred_on, status, account_id, is_locked,
	 created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW())
RETURNING `+entryColumns,
				fmt.Sprintf("Reconciliation adjustment %s", params.PeriodEnd.Format("2006-01-02")),
				params.Diff.Abs().Cents(), kind, ledger.CategoryAdjustment, params.PeriodEnd,
				ledger.StatusPaid, params.AccountID))
			if err != nil {
				return err
			}
			res.Adjustment = &e
			adjustmentID = &e.ID
		}

		tag, err := tx.Exec(ctx, `UPDATE ledger_entries
SET is_locked = TRUE, updated_at = NOW()
WHERE account_id = $1 AND occurred_on <= $2 AND is_locked = FALSE AND deleted_at IS NULL`,
			params.AccountID, params.PeriodEnd)
		if err != nil {
			return err
		}

		lock, err := scanLock(tx.QueryRow(ctx, `INSERT INTO period_locks
	(account_id, period_end, confirmed_cents, calculated_cents, adjustment_entry_id,
	 entries_locked, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING `+lockColumns,
			params.AccountID, params.PeriodEnd, params.Confirmed.Cents(), params.Calculated.Cents(),
			adjustmentID, tag.RowsAffected()))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyLocked
			}
			return err
		}
		res.Lock = lock
		return nil
	})
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return Result{}, ErrAlreadyLocked
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
