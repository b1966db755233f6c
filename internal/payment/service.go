package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/installment"
	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/shared"
)

// BalanceSource resolves an account's derived balance.
type BalanceSource interface {
	Balance(ctx context.Context, accountID int64, asOf *time.Time) (money.Money, error)
}

// Service settles payable bills.
type Service struct {
	repo     Repository
	balances BalanceSource
	audit    shared.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the payment service.
func NewService(repo Repository, balances BalanceSource, audit shared.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		balances: balances,
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

// CheckFunds reports whether the account balance covers the bill without
// committing anything.
func (s *Service) CheckFunds(ctx context.Context, accountID, billID int64) (FundsCheck, error) {
	b, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return FundsCheck{}, err
	}
	balance, err := s.balances.Balance(ctx, accountID, nil)
	if err != nil {
		return FundsCheck{}, err
	}
	return FundsCheck{
		AccountID: accountID,
		Amount:    b.Amount,
		Balance:   balance,
		Covered:   balance >= b.Amount,
	}, nil
}

// Pay settles a bill: it writes the payment entries and flips the bill to
// PAID in the same transaction. Account payments write one expense entry on
// the account after an advisory funds check (OverrideInsufficientFunds lets
// the balance go negative). Card payments write the expense on the card,
// optionally split into monthly installments; those entries start unlocked
// so a later invoice close sweeps them.
func (s *Service) Pay(ctx context.Context, input PayInput) (Receipt, error) {
	if (input.AccountID == 0) == (input.CardID == 0) {
		return Receipt{}, ErrInvalidSource
	}

	b, err := s.repo.GetBill(ctx, input.BillID)
	if err != nil {
		return Receipt{}, err
	}
	if b.Status == bill.StatusPaid {
		return Receipt{}, ErrBillAlreadyPaid
	}

	paidOn := input.PaidOn
	if paidOn.IsZero() {
		now := s.now()
		paidOn = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	description := fmt.Sprintf("Payment: %s", b.Description)

	var (
		balance    money.Money
		entryParam []EntryParams
	)
	switch {
	case input.AccountID != 0:
		balance, err = s.balances.Balance(ctx, input.AccountID, nil)
		if err != nil {
			return Receipt{}, err
		}
		if balance < b.Amount && !input.OverrideInsufficientFunds {
			return Receipt{}, fmt.Errorf("%w: balance %s, bill %s",
				ErrInsufficientFunds, balance.String(), b.Amount.String())
		}
		accountID := input.AccountID
		entryParam = []EntryParams{{
			Description: description,
			Amount:      b.Amount,
			Category:    b.Category,
			OccurredOn:  paidOn,
			AccountID:   &accountID,
		}}

	case input.Installments > 1:
		plan, err := installment.Generate(b.Amount, input.Installments, paidOn, description)
		if err != nil {
			return Receipt{}, err
		}
		total := plan.Count
		for _, item := range plan.Items {
			cardID := input.CardID
			groupID := plan.GroupID
			idx := item.Index
			entryParam = append(entryParam, EntryParams{
				Description:      item.Description,
				Amount:           item.Amount,
				Category:         b.Category,
				OccurredOn:       item.DueOn,
				CardID:           &cardID,
				GroupID:          &groupID,
				InstallmentIndex: &idx,
				InstallmentTotal: &total,
			})
		}

	default:
		cardID := input.CardID
		entryParam = []EntryParams{{
			Description: description,
			Amount:      b.Amount,
			Category:    b.Category,
			OccurredOn:  paidOn,
			CardID:      &cardID,
		}}
	}

	settled, entries, err := s.repo.SettleBill(ctx, SettleParams{
		BillID:         b.ID,
		PaidOn:         paidOn,
		Entries:        entryParam,
		IdempotencyKey: shared.PaymentKey(b.ID, paidOn),
	})
	if err != nil {
		return Receipt{}, err
	}

	if s.audit != nil {
		meta := map[string]any{
			"entry_id": entries[0].ID,
			"entries":  len(entries),
			"amount":   settled.Amount.String(),
			"paid_on":  paidOn.Format("2006-01-02"),
		}
		if input.AccountID != 0 {
			meta["account_id"] = input.AccountID
		} else {
			meta["card_id"] = input.CardID
		}
		if auditErr := s.audit.Record(ctx, shared.AuditLog{
			Action:   "payment.settle",
			Entity:   "bill",
			EntityID: strconv.FormatInt(settled.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit record failed",
				slog.String("action", "payment.settle"), slog.Any("error", auditErr))
		}
	}

	s.logger.InfoContext(ctx, "bill settled",
		slog.Int64("bill_id", settled.ID),
		slog.Int64("account_id", input.AccountID),
		slog.Int64("card_id", input.CardID),
		slog.Int("entries", len(entries)),
		slog.String("amount", settled.Amount.String()))

	receipt := Receipt{Bill: settled, Entry: entries[0], Entries: entries}
	if input.AccountID != 0 {
		receipt.Balance = balance - settled.Amount
	}
	return receipt, nil
}
