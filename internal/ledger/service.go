package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homeledger/homeledger/internal/installment"
	"github.com/homeledger/homeledger/internal/money"
)

// Service enforces ledger write rules on top of the repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry inserts a single ledger entry after validating its shape and
// the period-close boundary.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error) {
	if err := validateEntryInput(&input); err != nil {
		return Entry{}, err
	}
	if err := s.guardPeriod(ctx, input.AccountID, input.OccurredOn); err != nil {
		return Entry{}, err
	}
	return s.repo.CreateEntry(ctx, input)
}

// CreateCardInstallments materializes a card purchase as an installment
// group of expense entries. New card purchases start open (unlocked) to be
// swept by a future invoice close.
func (s *Service) CreateCardInstallments(ctx context.Context, input CreateCardPurchaseInput) ([]Entry, error) {
	if input.CardID == 0 {
		return nil, errors.New("ledger: card id required")
	}
	plan, err := installment.Generate(input.Total, input.Count, input.FirstDate, input.Description)
	if err != nil {
		return nil, err
	}

	inputs := make([]CreateEntryInput, len(plan.Items))
	total := plan.Count
	for i, item := range plan.Items {
		idx := item.Index
		cardID := input.CardID
		groupID := plan.GroupID
		inputs[i] = CreateEntryInput{
			Description:      item.Description,
			Amount:           item.Amount,
			Kind:             KindExpense,
			OccurredOn:       item.DueOn,
			Status:           StatusPaid,
			CardID:           &cardID,
			GroupID:          &groupID,
			InstallmentIndex: &idx,
			InstallmentTotal: &total,
		}
	}
	return s.repo.CreateEntryBatch(ctx, inputs)
}

// GetEntry returns one entry.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries returns filtered entries.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	return s.repo.ListEntries(ctx, filter)
}

// UpdateEntry patches an entry. Locked entries are immutable; history on or
// before a period lock stays frozen even for date moves.
func (s *Service) UpdateEntry(ctx context.Context, id int64, input UpdateEntryInput) (Entry, error) {
	current, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if current.IsLocked {
		return Entry{}, ErrEntryLocked
	}
	if err := s.guardPeriod(ctx, current.AccountID, current.OccurredOn); err != nil {
		return Entry{}, err
	}
	if input.OccurredOn != nil {
		if err := s.guardPeriod(ctx, current.AccountID, *input.OccurredOn); err != nil {
			return Entry{}, err
		}
	}
	return s.repo.UpdateEntry(ctx, id, input)
}

// SoftDeleteEntry marks an entry deleted, keeping it for audit and undo.
func (s *Service) SoftDeleteEntry(ctx context.Context, id int64) error {
	current, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if current.IsLocked {
		return ErrEntryLocked
	}
	if err := s.guardPeriod(ctx, current.AccountID, current.OccurredOn); err != nil {
		return err
	}
	return s.repo.SoftDeleteEntry(ctx, id)
}

// Balance returns the derived balance for an account. A nil asOf means now.
func (s *Service) Balance(ctx context.Context, accountID int64, asOf *time.Time) (money.Money, error) {
	return s.repo.DerivedBalance(ctx, accountID, asOf)
}

// guardPeriod rejects writes dated on or before the account's latest period
// lock. Card-funded entries are bounded by invoice locks instead.
func (s *Service) guardPeriod(ctx context.Context, accountID *int64, date time.Time) error {
	if accountID == nil {
		return nil
	}
	end, err := s.repo.LatestLockEnd(ctx, *accountID)
	if err != nil {
		return err
	}
	if end != nil && !date.After(*end) {
		return fmt.Errorf("%w: account %d is closed through %s", ErrPeriodClosed, *accountID, end.Format("2006-01-02"))
	}
	return nil
}

func validateEntryInput(input *CreateEntryInput) error {
	switch input.Kind {
	case KindIncome, KindExpense, KindTransfer:
	default:
		return ErrInvalidKind
	}
	if input.AccountID != nil && input.CardID != nil {
		return ErrInvalidFunding
	}
	if input.Status == "" {
		input.Status = StatusPending
	}
	if input.Description == "" {
		return errors.New("ledger: description required")
	}
	return nil
}
