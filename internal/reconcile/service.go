package reconcile

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/homeledger/homeledger/internal/masterdata"
	"github.com/homeledger/homeledger/internal/shared"
)

// AccountSource resolves the account being closed.
type AccountSource interface {
	GetAccount(ctx context.Context, id int64) (masterdata.Account, error)
}

// Locker serializes closes per account.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service closes accounting periods.
type Service struct {
	repo     Repository
	accounts AccountSource
	mutex    Locker
	audit    shared.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the reconcile service.
func NewService(repo Repository, accounts AccountSource, mutex Locker, audit shared.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		accounts: accounts,
		mutex:    mutex,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListLocks returns the account's period locks, newest first.
func (s *Service) ListLocks(ctx context.Context, accountID int64) ([]PeriodLock, error) {
	return s.repo.ListLocks(ctx, accountID)
}

// ClosePeriod squares the account against its confirmed real-world balance
// and seals history up to the period end. Any difference between the
// calculated and confirmed balances, down to a single cent, becomes an
// adjustment entry dated at the period end, so the locked history always
// reproduces the confirmed balance exactly.
func (s *Service) ClosePeriod(ctx context.Context, input ClosePeriodInput) (Result, error) {
	account, err := s.accounts.GetAccount(ctx, input.AccountID)
	if err != nil {
		return Result{}, err
	}

	release, err := s.mutex.Acquire(ctx, shared.PeriodCloseKey(account.ID))
	if err != nil {
		return Result{}, err
	}
	defer release()

	end := input.PeriodEnd
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	latest, err := s.repo.LatestLockEnd(ctx, account.ID)
	if err != nil {
		return Result{}, err
	}
	if latest != nil && !end.After(*latest) {
		return Result{}, ErrAlreadyLocked
	}

	calculated, err := s.repo.CalculatedBalance(ctx, account.ID, end)
	if err != nil {
		return Result{}, err
	}
	diff := input.ConfirmedBalance - calculated

	res, err := s.repo.ClosePeriod(ctx, CloseParams{
		AccountID:      account.ID,
		PeriodEnd:      end,
		Confirmed:      input.ConfirmedBalance,
		Calculated:     calculated,
		Diff:           diff,
		IdempotencyKey: shared.PeriodKey(account.ID, end),
	})
	if err != nil {
		return Result{}, err
	}

	if s.audit != nil {
		meta := map[string]any{
			"period_end": end.Format("2006-01-02"),
			"confirmed":  input.ConfirmedBalance.String(),
			"calculated": calculated.String(),
			"locked":     res.Lock.EntriesLocked,
		}
		if res.Adjustment != nil {
			meta["adjustment_entry_id"] = res.Adjustment.ID
			meta["adjustment"] = diff.String()
		}
		if auditErr := s.audit.Record(ctx, shared.AuditLog{
			Action:   "period.close",
			Entity:   "account",
			EntityID: strconv.FormatInt(account.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit record failed",
				slog.String("action", "period.close"), slog.Any("error", auditErr))
		}
	}

	s.logger.InfoContext(ctx, "period closed",
		slog.Int64("account_id", account.ID),
		slog.String("period_end", end.Format("2006-01-02")),
		slog.String("confirmed", input.ConfirmedBalance.String()),
		slog.String("calculated", calculated.String()),
		slog.Int64("entries_locked", res.Lock.EntriesLocked),
		slog.Bool("adjusted", res.Adjustment != nil))

	return res, nil
}
