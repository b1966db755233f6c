package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/platform/db"
	"github.com/homeledger/homeledger/internal/shared"
)

// Repository defines settlement data access.
type Repository interface {
	GetBill(ctx context.Context, id int64) (bill.PayableBill, error)
	// SettleBill creates the payment entries and flips the bill to PAID in
	// one transaction. Replaying the same settlement returns the original
	// outcome instead of paying twice.
	SettleBill(ctx context.Context, params SettleParams) (bill.PayableBill, []ledger.Entry, error)
}

const billColumns = `id, description, amount_cents, category, due_on, status, group_id,
	installment_number, installment_total, card_id, recurring_id, payment_entry_id,
	paid_on, deleted_at, created_at, updated_at`

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

func (r *pgRepository) GetBill(ctx context.Context, id int64) (bill.PayableBill, error) {
	b, err := scanBill(r.pool.QueryRow(ctx,
		`SELECT `+billColumns+` FROM payable_bills WHERE id=$1 AND deleted_at IS NULL`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return bill.PayableBill{}, bill.ErrBillNotFound
	}
	return b, err
}

func (r *pgRepository) SettleBill(ctx context.Context, params SettleParams) (bill.PayableBill, []ledger.Entry, error) {
	var (
		b       bill.PayableBill
		entries []ledger.Entry
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := shared.InsertKeyTx(ctx, tx, params.IdempotencyKey, "payment"); err != nil {
			return err
		}

		current, err := scanBill(tx.QueryRow(ctx,
			`SELECT `+billColumns+` FROM payable_bills WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`,
			params.BillID))
		if errors.Is(err, pgx.ErrNoRows) {
			return bill.ErrBillNotFound
		}
		if err != nil {
			return err
		}
		if current.Status == bill.StatusPaid {
			return ErrBillAlreadyPaid
		}

		entries = entries[:0]
		for _, in := range params.Entries {
			e, err := scanEntry(tx.QueryRow(ctx, `INSERT INTO ledger_entries
	(description, amount_cents, kind, category, occurred_on, status, account_id, card_id,
	 group_id, installment_index, installment_total, bill_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
RETURNING `+entryColumns,
				in.Description, in.Amount.Cents(), ledger.KindExpense, in.Category,
				in.OccurredOn, ledger.StatusPaid, in.AccountID, in.CardID,
				in.GroupID, in.InstallmentIndex, in.InstallmentTotal, params.BillID))
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}

		b, err = scanBill(tx.QueryRow(ctx, `UPDATE payable_bills
SET status = $1, payment_entry_id = $2, paid_on = $3, updated_at = NOW()
WHERE id = $4 AND status <> $1
RETURNING `+billColumns,
			bill.StatusPaid, entries[0].ID, params.PaidOn, params.BillID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBillAlreadyPaid
		}
		return err
	})
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return r.recoverSettlement(ctx, params)
	}
	if err != nil {
		return bill.PayableBill{}, nil, err
	}
	return b, entries, nil
}

// recoverSettlement replays a settlement whose idempotency key is already
// recorded: the original outcome is returned as is. A recorded key with no
// settled bill means the earlier attempt left the ledger and the bill out
// of step, which the caller must resolve by hand.
func (r *pgRepository) recoverSettlement(ctx context.Context, params SettleParams) (bill.PayableBill, []ledger.Entry, error) {
	b, err := r.GetBill(ctx, params.BillID)
	if err != nil {
		return bill.PayableBill{}, nil, err
	}
	if b.Status != bill.StatusPaid || b.PaymentEntryID == nil {
		return bill.PayableBill{}, nil, &shared.PartialError{
			Op:   "payment.settle",
			Step: "recover",
			Key:  params.IdempotencyKey,
			Err:  errors.New("settlement recorded but bill not settled"),
		}
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE bill_id=$1 AND deleted_at IS NULL ORDER BY id`,
		b.ID)
	if err != nil {
		return bill.PayableBill{}, nil, err
	}
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return bill.PayableBill{}, nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return bill.PayableBill{}, nil, err
	}
	return b, entries, nil
}
