package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed business keys so interrupted
// multi-write operations can be retried without duplicating effects.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates the key was already recorded.
var ErrIdempotencyConflict = errors.New("idempotent operation already processed")

// InsertKeyTx records key within an open transaction, so the key commits or
// rolls back together with the operation's writes. Duplicate keys return
// ErrIdempotencyConflict.
func InsertKeyTx(ctx context.Context, tx pgx.Tx, key, module string) error {
	if key == "" || module == "" {
		return errors.New("idempotency key and module required")
	}
	_, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Seen reports whether key was already recorded for module.
func (s *IdempotencyStore) Seen(ctx context.Context, key, module string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("idempotency store not initialised")
	}
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Cleanup removes keys older than the retention window.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PaymentKey identifies a bill settlement attempt.
func PaymentKey(billID int64, paymentDate time.Time) string {
	return fmt.Sprintf("bill:%d:paid:%s", billID, paymentDate.Format("2006-01-02"))
}

// InvoiceKey identifies a card invoice for a billing period.
func InvoiceKey(cardID int64, period string) string {
	return fmt.Sprintf("card:%d:invoice:%s", cardID, period)
}

// PeriodKey identifies an account period close.
func PeriodKey(accountID int64, periodEnd time.Time) string {
	return fmt.Sprintf("account:%d:close:%s", accountID, periodEnd.Format("2006-01-02"))
}
