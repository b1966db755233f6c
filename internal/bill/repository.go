package bill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/platform/db"
)

// Repository defines payable bill data access.
type Repository interface {
	CreateBill(ctx context.Context, input CreateBillInput) (PayableBill, error)
	// CreateBillBatch inserts a whole installment series in one
	// transaction; a failed insert rolls back the group.
	CreateBillBatch(ctx context.Context, inputs []CreateBillInput) ([]PayableBill, error)
	GetBill(ctx context.Context, id int64) (PayableBill, error)
	ListBills(ctx context.Context, filter BillFilter) ([]PayableBill, error)
	SoftDeleteBill(ctx context.Context, id int64) error
	// MarkOverdue flips PENDING bills past their due date to OVERDUE and
	// returns how many changed.
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)

	CreateRecurring(ctx context.Context, input CreateRecurringInput) (RecurringBill, error)
	ListRecurring(ctx context.Context, activeOnly bool) ([]RecurringBill, error)
	SetRecurringActive(ctx context.Context, id int64, active bool) error
	HasBillForRecurringMonth(ctx context.Context, recurringID int64, month time.Time) (bool, error)
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

func scanBill(row pgx.Row) (PayableBill, error) {
	var b PayableBill
	var cents int64
	err := row.Scan(&b.ID, &b.Description, &cents, &b.Category, &b.DueOn, &b.Status, &b.GroupID,
		&b.InstallmentNumber, &b.InstallmentTotal, &b.CardID, &b.RecurringID, &b.PaymentEntryID,
		&b.PaidOn, &b.DeletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return PayableBill{}, err
	}
	b.Amount = money.FromCents(cents)
	return b, nil
}

func insertBill(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, input CreateBillInput) (PayableBill, error) {
	row := q.QueryRow(ctx, `INSERT INTO payable_bills
	(description, amount_cents, category, due_on, status, group_id, installment_number,
	 installment_total, card_id, recurring_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING `+billColumns,
		input.Description, input.Amount.Cents(), input.Category, input.DueOn, StatusPending,
		input.GroupID, input.InstallmentNumber, input.InstallmentTotal, input.CardID, input.RecurringID)
	return scanBill(row)
}

func (r *pgRepository) CreateBill(ctx context.Context, input CreateBillInput) (PayableBill, error) {
	return insertBill(ctx, r.pool, input)
}

func (r *pgRepository) CreateBillBatch(ctx context.Context, inputs []CreateBillInput) ([]PayableBill, error) {
	bills := make([]PayableBill, 0, len(inputs))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, input := range inputs {
			b, err := insertBill(ctx, tx, input)
			if err != nil {
				return err
			}
			bills = append(bills, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *pgRepository) GetBill(ctx context.Context, id int64) (PayableBill, error) {
	b, err := scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM payable_bills WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PayableBill{}, ErrBillNotFound
	}
	return b, err
}

func (r *pgRepository) ListBills(ctx context.Context, filter BillFilter) ([]PayableBill, error) {
	query := `SELECT ` + billColumns + ` FROM payable_bills WHERE deleted_at IS NULL`
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $1`
	}
	if filter.Month != nil {
		args = append(args, *filter.Month)
		query += fmt.Sprintf(` AND date_trunc('month', due_on) = date_trunc('month', $%d::date)`, len(args))
	}
	query += ` ORDER BY due_on, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PayableBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *pgRepository) SoftDeleteBill(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payable_bills SET deleted_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status <> 'PAID' AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *pgRepository) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE payable_bills SET status = 'OVERDUE', updated_at = NOW()
WHERE status = 'PENDING' AND due_on < $1 AND deleted_at IS NULL`, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgRepository) CreateRecurring(ctx context.Context, input CreateRecurringInput) (RecurringBill, error) {
	var rec RecurringBill
	var cents int64
	err := r.pool.QueryRow(ctx, `INSERT INTO recurring_bills (description, amount_cents, due_day, category, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
RETURNING id, description, amount_cents, due_day, category, active, created_at, updated_at`,
		input.Description, input.Amount.Cents(), input.DueDay, input.Category).
		Scan(&rec.ID, &rec.Description, &cents, &rec.DueDay, &rec.Category, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Amount = money.FromCents(cents)
	return rec, err
}

func (r *pgRepository) ListRecurring(ctx context.Context, activeOnly bool) ([]RecurringBill, error) {
	query := `SELECT id, description, amount_cents, due_day, category, active, created_at, updated_at FROM recurring_bills`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringBill
	for rows.Next() {
		var rec RecurringBill
		var cents int64
		if err := rows.Scan(&rec.ID, &rec.Description, &cents, &rec.DueDay, &rec.Category, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Amount = money.FromCents(cents)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *pgRepository) SetRecurringActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE recurring_bills SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecurringNotFound
	}
	return nil
}

func (r *pgRepository) HasBillForRecurringMonth(ctx context.Context, recurringID int64, month time.Time) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM payable_bills
WHERE recurring_id = $1 AND date_trunc('month', due_on) = date_trunc('month', $2::date) AND deleted_at IS NULL
LIMIT 1`, recurringID, month).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
