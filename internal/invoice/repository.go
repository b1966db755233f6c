package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/platform/db"
	"github.com/homeledger/homeledger/internal/shared"
)

// Repository defines invoice close data access.
type Repository interface {
	// ListOpenCardEntries returns the card's unlocked, non-deleted, settled
	// expense entries dated on or before cutoff.
	ListOpenCardEntries(ctx context.Context, cardID int64, cutoff time.Time) ([]ledger.Entry, error)
	// CloseInvoice creates the bill and locks its source entries in one
	// transaction. A repeated close of the same period folds the listed
	// entries into the existing pending bill instead of creating a second
	// one.
	CloseInvoice(ctx context.Context, params CloseParams) (bill.PayableBill, error)
}

const billColumns = `id, description, amount_cents, category, due_on, status, group_id,
	installment_number, installment_total, card_id, recurring_id, payment_entry_id,
	paid_on, deleted_at, created_at, updated_at`

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func scanBill(row pgx.Row) (bill.PayableBill, error) {
	var b bill.PayableBill
	var cents int64
	err := row.Scan(&b.ID, &b.Description, &cents, &b.Category, &b.DueOn, &b.Status, &b.GroupID,
		&b.InstallmentNumber, &b.InstallmentTotal, &b.CardID, &b.RecurringID, &b.PaymentEntryID,
		&b.PaidOn, &b.DeletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return bill.PayableBill{}, err
	}
	b.Amount = money.FromCents(cents)
	return b, nil
}

func (r *pgRepository) ListOpenCardEntries(ctx context.Context, cardID int64, cutoff time.Time) ([]ledger.Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, description, amount_cents, occurred_on
FROM ledger_entries
WHERE card_id = $1
  AND kind = $2
  AND status = $3
  AND is_locked = FALSE
  AND deleted_at IS NULL
  AND occurred_on <= $4
ORDER BY occurred_on, id`, cardID, ledger.KindExpense, ledger.StatusPaid, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var cents int64
		if err := rows.Scan(&e.ID, &e.Description, &cents, &e.OccurredOn); err != nil {
			return nil, err
		}
		e.Amount = money.FromCents(cents)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// lockEntries flips the listed entries to locked and stamps the bill they
// now belong to. The is_locked guard makes the update a compare-and-set:
// any entry already claimed by a concurrent close drops the row count and
// fails the whole transaction.
func lockEntries(ctx context.Context, tx pgx.Tx, billID int64, entryIDs []int64) error {
	tag, err := tx.Exec(ctx, `UPDATE ledger_entries
SET is_locked = TRUE, bill_id = $1, updated_at = NOW()
WHERE id = ANY($2) AND is_locked = FALSE AND deleted_at IS NULL`, billID, entryIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(entryIDs)) {
		return shared.ErrLockConflict
	}
	return nil
}

func (r *pgRepository) CloseInvoice(ctx context.Context, params CloseParams) (bill.PayableBill, error) {
	var b bill.PayableBill
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := shared.InsertKeyTx(ctx, tx, params.IdempotencyKey, "invoice"); err != nil {
			return err
		}
		created, err := scanBill(tx.QueryRow(ctx, `INSERT INTO payable_bills
	(description, amount_cents, category, due_on, status, card_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING `+billColumns,
			params.Description, params.Amount.Cents(), params.Category, params.DueOn,
			bill.StatusPending, params.CardID))
		if err != nil {
			return err
		}
		if err := lockEntries(ctx, tx, created.ID, params.EntryIDs); err != nil {
			return err
		}
		b = created
		return nil
	})
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return r.foldIntoInvoice(ctx, params)
	}
	if err != nil {
		return bill.PayableBill{}, err
	}
	return b, nil
}

// foldIntoInvoice handles a close of a period that already has an invoice:
// purchases made after the first close are absorbed into the still-pending
// bill. A settled invoice stays untouched.
func (r *pgRepository) foldIntoInvoice(ctx context.Context, params CloseParams) (bill.PayableBill, error) {
	var b bill.PayableBill
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		existing, err := scanBill(tx.QueryRow(ctx, `SELECT `+billColumns+`
FROM payable_bills
WHERE card_id = $1
  AND category = $2
  AND date_trunc('month', due_on) = date_trunc('month', $3::date)
  AND deleted_at IS NULL
ORDER BY id
LIMIT 1
FOR UPDATE`, params.CardID, params.Category, params.DueOn))
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		if existing.Status == bill.StatusPaid {
			return ErrInvoicePaid
		}
		if err := lockEntries(ctx, tx, existing.ID, params.EntryIDs); err != nil {
			return err
		}
		b, err = scanBill(tx.QueryRow(ctx, `UPDATE payable_bills
SET amount_cents = amount_cents + $1, updated_at = NOW()
WHERE id = $2
RETURNING `+billColumns, params.Amount.Cents(), existing.ID))
		return err
	})
	if err != nil {
		return bill.PayableBill{}, err
	}
	return b, nil
}
