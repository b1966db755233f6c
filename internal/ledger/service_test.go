package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homeledger/homeledger/internal/money"
)

type memoryLock struct {
	periodEnd time.Time
	confirmed money.Money
}

type memoryRepo struct {
	entries map[int64]*Entry
	locks   map[int64][]memoryLock // accountID -> locks
	nextID  int64
	failAt  int // fail the Nth insert of a batch (1-based), 0 = never
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[int64]*Entry), locks: make(map[int64][]memoryLock)}
}

func (r *memoryRepo) CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error) {
	r.nextID++
	e := Entry{
		ID:               r.nextID,
		Description:      input.Description,
		Amount:           input.Amount,
		Kind:             input.Kind,
		Category:         input.Category,
		OccurredOn:       input.OccurredOn,
		Status:           input.Status,
		AccountID:        input.AccountID,
		CardID:           input.CardID,
		IsLocked:         input.IsLocked,
		GroupID:          input.GroupID,
		InstallmentIndex: input.InstallmentIndex,
		InstallmentTotal: input.InstallmentTotal,
		BillID:           input.BillID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	r.entries[e.ID] = &e
	return e, nil
}

func (r *memoryRepo) CreateEntryBatch(ctx context.Context, inputs []CreateEntryInput) ([]Entry, error) {
	snapshot := r.nextID
	var out []Entry
	for i, input := range inputs {
		if r.failAt > 0 && i+1 == r.failAt {
			// roll back the whole batch
			for _, e := range out {
				delete(r.entries, e.ID)
			}
			r.nextID = snapshot
			return nil, context.DeadlineExceeded
		}
		e, _ := r.CreateEntry(ctx, input)
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return *e, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if !filter.IncludeDeleted && e.DeletedAt != nil {
			continue
		}
		if filter.AccountID != nil && (e.AccountID == nil || *e.AccountID != *filter.AccountID) {
			continue
		}
		if filter.CardID != nil && (e.CardID == nil || *e.CardID != *filter.CardID) {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.OnlyUnlocked && e.IsLocked {
			continue
		}
		if filter.From != nil && e.OccurredOn.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.OccurredOn.After(*filter.To) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *memoryRepo) UpdateEntry(ctx context.Context, id int64, input UpdateEntryInput) (Entry, error) {
	e, ok := r.entries[id]
	if !ok || e.IsLocked || e.DeletedAt != nil {
		return Entry{}, ErrEntryNotFound
	}
	if input.Description != nil {
		e.Description = *input.Description
	}
	if input.Amount != nil {
		e.Amount = *input.Amount
	}
	if input.Category != nil {
		e.Category = *input.Category
	}
	if input.OccurredOn != nil {
		e.OccurredOn = *input.OccurredOn
	}
	if input.Status != nil {
		e.Status = *input.Status
	}
	e.UpdatedAt = time.Now()
	return *e, nil
}

func (r *memoryRepo) SoftDeleteEntry(ctx context.Context, id int64) error {
	e, ok := r.entries[id]
	if !ok || e.IsLocked || e.DeletedAt != nil {
		return ErrEntryNotFound
	}
	now := time.Now()
	e.DeletedAt = &now
	return nil
}

func (r *memoryRepo) DerivedBalance(ctx context.Context, accountID int64, asOf *time.Time) (money.Money, error) {
	var anchor *memoryLock
	for i := range r.locks[accountID] {
		lock := r.locks[accountID][i]
		if asOf != nil && lock.periodEnd.After(*asOf) {
			continue
		}
		if anchor == nil || lock.periodEnd.After(anchor.periodEnd) {
			anchor = &lock
		}
	}
	var sum money.Money
	if anchor != nil {
		sum = anchor.confirmed
	}
	for _, e := range r.entries {
		if e.AccountID == nil || *e.AccountID != accountID || e.Status != StatusPaid || e.DeletedAt != nil {
			continue
		}
		if asOf != nil && e.OccurredOn.After(*asOf) {
			continue
		}
		if anchor != nil && !e.OccurredOn.After(anchor.periodEnd) {
			continue
		}
		sum += e.Signed()
	}
	return sum, nil
}

func (r *memoryRepo) LatestLockEnd(ctx context.Context, accountID int64) (*time.Time, error) {
	var latest *time.Time
	for i := range r.locks[accountID] {
		end := r.locks[accountID][i].periodEnd
		if latest == nil || end.After(*latest) {
			latest = &end
		}
	}
	return latest, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func paidEntry(accountID int64, kind EntryKind, cents int64, on time.Time) CreateEntryInput {
	return CreateEntryInput{
		Description: "entry",
		Amount:      money.FromCents(cents),
		Kind:        kind,
		OccurredOn:  on,
		Status:      StatusPaid,
		AccountID:   &accountID,
	}
}

func TestDerivedBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, paidEntry(1, KindIncome, 100000, date(2025, time.March, 1)))
	require.NoError(t, err)
	_, err = svc.CreateEntry(ctx, paidEntry(1, KindExpense, 25000, date(2025, time.March, 10)))
	require.NoError(t, err)

	// Pending and soft-deleted entries never count.
	pending := paidEntry(1, KindExpense, 99999, date(2025, time.March, 11))
	pending.Status = StatusPending
	_, err = svc.CreateEntry(ctx, pending)
	require.NoError(t, err)
	deleted, err := svc.CreateEntry(ctx, paidEntry(1, KindExpense, 5000, date(2025, time.March, 12)))
	require.NoError(t, err)
	require.NoError(t, svc.SoftDeleteEntry(ctx, deleted.ID))

	balance, err := svc.Balance(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, money.FromCents(75000), balance)
}

func TestDerivedBalanceAnchoredByPeriodLock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, paidEntry(1, KindIncome, 100000, date(2025, time.February, 1)))
	require.NoError(t, err)

	// A period lock snapshots the confirmed balance; entries at or before
	// the cutoff no longer contribute directly.
	repo.locks[1] = []memoryLock{{periodEnd: date(2025, time.February, 28), confirmed: money.FromCents(48000)}}

	_, err = svc.CreateEntry(ctx, paidEntry(1, KindIncome, 1000, date(2025, time.March, 5)))
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, money.FromCents(49000), balance)
}

func TestLockedEntryIsImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	input := paidEntry(1, KindExpense, 1000, date(2025, time.April, 2))
	input.IsLocked = true
	entry, err := repo.CreateEntry(ctx, input)
	require.NoError(t, err)

	desc := "edited"
	_, err = svc.UpdateEntry(ctx, entry.ID, UpdateEntryInput{Description: &desc})
	require.ErrorIs(t, err, ErrEntryLocked)

	err = svc.SoftDeleteEntry(ctx, entry.ID)
	require.ErrorIs(t, err, ErrEntryLocked)
}

func TestPeriodBoundaryRejectsBackdatedWrites(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	repo.locks[1] = []memoryLock{{periodEnd: date(2025, time.March, 31), confirmed: 0}}

	_, err := svc.CreateEntry(ctx, paidEntry(1, KindExpense, 1000, date(2025, time.March, 31)))
	require.ErrorIs(t, err, ErrPeriodClosed)

	// The day after the cutoff is open.
	entry, err := svc.CreateEntry(ctx, paidEntry(1, KindExpense, 1000, date(2025, time.April, 1)))
	require.NoError(t, err)

	// Moving an open entry back into the closed period is also rejected.
	into := date(2025, time.February, 1)
	_, err = svc.UpdateEntry(ctx, entry.ID, UpdateEntryInput{OccurredOn: &into})
	require.ErrorIs(t, err, ErrPeriodClosed)
}

func TestCreateEntryValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	accountID, cardID := int64(1), int64(2)
	_, err := svc.CreateEntry(ctx, CreateEntryInput{
		Description: "x", Kind: KindExpense, OccurredOn: date(2025, time.May, 1),
		AccountID: &accountID, CardID: &cardID,
	})
	require.ErrorIs(t, err, ErrInvalidFunding)

	_, err = svc.CreateEntry(ctx, CreateEntryInput{Description: "x", Kind: "BOGUS", OccurredOn: date(2025, time.May, 1)})
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestCreateCardInstallments(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	entries, err := svc.CreateCardInstallments(ctx, CreateCardPurchaseInput{
		CardID:      7,
		Description: "Headphones",
		Total:       money.FromCents(10000),
		Count:       3,
		FirstDate:   date(2025, time.January, 31),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var sum money.Money
	for i, e := range entries {
		sum += e.Amount
		require.Equal(t, KindExpense, e.Kind)
		require.Equal(t, StatusPaid, e.Status)
		require.False(t, e.IsLocked, "new card purchases start open")
		require.Equal(t, int64(7), *e.CardID)
		require.Equal(t, i+1, *e.InstallmentIndex)
		require.Equal(t, 3, *e.InstallmentTotal)
		require.Equal(t, *entries[0].GroupID, *e.GroupID)
	}
	require.Equal(t, money.FromCents(10000), sum)
	require.Equal(t, date(2025, time.February, 28), entries[1].OccurredOn)
}

func TestCardInstallmentBatchRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	repo.failAt = 2
	svc := NewService(repo)

	_, err := svc.CreateCardInstallments(context.Background(), CreateCardPurchaseInput{
		CardID: 7, Description: "TV", Total: money.FromCents(300000), Count: 3,
		FirstDate: date(2025, time.June, 10),
	})
	require.Error(t, err)
	require.Empty(t, repo.entries, "no partial installment group may remain")
}
