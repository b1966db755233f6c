package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/masterdata"
	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/shared"
)

type memoryEntry struct {
	ledger.Entry
	cardID int64
}

type memoryRepo struct {
	entries     map[int64]*memoryEntry
	bills       map[int64]*bill.PayableBill
	keys        map[string]bool
	nextID      int64
	beforeClose func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries: make(map[int64]*memoryEntry),
		bills:   make(map[int64]*bill.PayableBill),
		keys:    make(map[string]bool),
	}
}

func (r *memoryRepo) addEntry(cardID int64, amount money.Money, on time.Time) int64 {
	r.nextID++
	r.entries[r.nextID] = &memoryEntry{
		Entry: ledger.Entry{
			ID:         r.nextID,
			Amount:     amount,
			Kind:       ledger.KindExpense,
			Status:     ledger.StatusPaid,
			OccurredOn: on,
		},
		cardID: cardID,
	}
	return r.nextID
}

func (r *memoryRepo) ListOpenCardEntries(ctx context.Context, cardID int64, cutoff time.Time) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.entries {
		if e.cardID != cardID || e.IsLocked || e.DeletedAt != nil || e.OccurredOn.After(cutoff) {
			continue
		}
		out = append(out, e.Entry)
	}
	return out, nil
}

func (r *memoryRepo) lockEntries(billID int64, ids []int64) error {
	for _, id := range ids {
		if e, ok := r.entries[id]; !ok || e.IsLocked {
			return shared.ErrLockConflict
		}
	}
	for _, id := range ids {
		r.entries[id].IsLocked = true
		r.entries[id].BillID = &billID
	}
	return nil
}

func (r *memoryRepo) CloseInvoice(ctx context.Context, params CloseParams) (bill.PayableBill, error) {
	if r.beforeClose != nil {
		r.beforeClose()
	}
	if r.keys[params.IdempotencyKey] {
		return r.foldIntoInvoice(params)
	}
	r.nextID++
	b := &bill.PayableBill{
		ID:          r.nextID,
		Description: params.Description,
		Amount:      params.Amount,
		Category:    params.Category,
		DueOn:       params.DueOn,
		Status:      bill.StatusPending,
		CardID:      &params.CardID,
	}
	if err := r.lockEntries(b.ID, params.EntryIDs); err != nil {
		return bill.PayableBill{}, err
	}
	r.bills[b.ID] = b
	r.keys[params.IdempotencyKey] = true
	return *b, nil
}

func (r *memoryRepo) foldIntoInvoice(params CloseParams) (bill.PayableBill, error) {
	for _, b := range r.bills {
		if b.CardID == nil || *b.CardID != params.CardID || b.Category != params.Category {
			continue
		}
		if b.DueOn.Year() != params.DueOn.Year() || b.DueOn.Month() != params.DueOn.Month() {
			continue
		}
		if b.Status == bill.StatusPaid {
			return bill.PayableBill{}, ErrInvoicePaid
		}
		if err := r.lockEntries(b.ID, params.EntryIDs); err != nil {
			return bill.PayableBill{}, err
		}
		b.Amount += params.Amount
		return *b, nil
	}
	return bill.PayableBill{}, shared.ErrNotFound
}

type cardStub struct {
	card masterdata.Card
}

func (c cardStub) GetCard(ctx context.Context, id int64) (masterdata.Card, error) {
	if id != c.card.ID {
		return masterdata.Card{}, masterdata.ErrCardNotFound
	}
	return c.card, nil
}

type lockerStub struct {
	busy     bool
	acquired int
}

func (l *lockerStub) Acquire(ctx context.Context, key string) (func(), error) {
	if l.busy {
		return nil, shared.ErrBusy
	}
	l.acquired++
	return func() {}, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryRepo, card masterdata.Card, today time.Time) *Service {
	svc := NewService(repo, cardStub{card: card}, &lockerStub{}, nil, nil)
	svc.WithNow(func() time.Time { return today })
	return svc
}

func TestCloseCardSweepsOpenPurchases(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	id1 := repo.addEntry(7, money.FromCents(2500), date(2025, time.February, 14))
	id2 := repo.addEntry(7, money.FromCents(7550), date(2025, time.March, 1))
	// Dated after the close; belongs to a later cycle.
	future := repo.addEntry(7, money.FromCents(9900), date(2025, time.April, 2))

	svc := newTestService(repo, card, date(2025, time.March, 5))
	b, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)

	require.Equal(t, money.FromCents(10050), b.Amount)
	require.Equal(t, "Visa invoice 2025-03", b.Description)
	require.Equal(t, ledger.CategoryCardInvoice, b.Category)
	require.Equal(t, date(2025, time.March, 20), b.DueOn)
	require.Equal(t, bill.StatusPending, b.Status)

	require.True(t, repo.entries[id1].IsLocked)
	require.True(t, repo.entries[id2].IsLocked)
	require.False(t, repo.entries[future].IsLocked)
	require.Equal(t, b.ID, *repo.entries[id1].BillID)
}

func TestCloseCardDueDateRollsOverAfterClosingDay(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	repo.addEntry(7, money.FromCents(1000), date(2025, time.March, 11))

	svc := newTestService(repo, card, date(2025, time.March, 12))
	b, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)
	require.Equal(t, date(2025, time.April, 20), b.DueOn)
	require.Equal(t, "Visa invoice 2025-04", b.Description)
}

func TestCloseCardOnMonthEndKeepsPeriod(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	repo.addEntry(7, money.FromCents(1000), date(2025, time.January, 30))

	svc := newTestService(repo, card, date(2025, time.January, 31))
	b, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)
	require.Equal(t, date(2025, time.February, 20), b.DueOn)
	require.Equal(t, "Visa invoice 2025-02", b.Description)
}

func TestNextDueDateClampsShortMonths(t *testing.T) {
	card := masterdata.Card{ClosingDay: 15, DueDay: 31}
	due := NextDueDate(card, date(2025, time.January, 20))
	require.Equal(t, date(2025, time.February, 28), due)

	due = NextDueDate(card, date(2024, time.January, 20))
	require.Equal(t, date(2024, time.February, 29), due)
}

func TestNextDueDateMonthEndDoesNotSkipFebruary(t *testing.T) {
	card := masterdata.Card{ClosingDay: 10, DueDay: 20}

	// A close run on Jan 31 is past the closing day, so it falls due in
	// February, not March.
	for day := 29; day <= 31; day++ {
		due := NextDueDate(card, date(2025, time.January, day))
		require.Equal(t, date(2025, time.February, 20), due, "close on Jan %d", day)
	}

	due := NextDueDate(card, date(2025, time.March, 30))
	require.Equal(t, date(2025, time.April, 20), due)

	due = NextDueDate(card, date(2025, time.December, 31))
	require.Equal(t, date(2026, time.January, 20), due)
}

func TestCloseCardEmptyInvoice(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}

	svc := newTestService(repo, card, date(2025, time.March, 5))
	_, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.ErrorIs(t, err, ErrEmptyInvoice)

	// A second close right after a successful one finds nothing open.
	id := repo.addEntry(7, money.FromCents(500), date(2025, time.March, 1))
	_, err = svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)
	require.True(t, repo.entries[id].IsLocked)

	_, err = svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.ErrorIs(t, err, ErrEmptyInvoice)
}

func TestCloseCardFoldsLatePurchasesIntoPendingInvoice(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	repo.addEntry(7, money.FromCents(4000), date(2025, time.March, 1))

	svc := newTestService(repo, card, date(2025, time.March, 5))
	first, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)

	late := repo.addEntry(7, money.FromCents(1500), date(2025, time.March, 6))
	svc.WithNow(func() time.Time { return date(2025, time.March, 7) })
	second, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, money.FromCents(5500), second.Amount)
	require.True(t, repo.entries[late].IsLocked)
}

func TestCloseCardRefusesSettledInvoice(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	repo.addEntry(7, money.FromCents(4000), date(2025, time.March, 1))

	svc := newTestService(repo, card, date(2025, time.March, 5))
	first, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.NoError(t, err)
	repo.bills[first.ID].Status = bill.StatusPaid

	repo.addEntry(7, money.FromCents(1500), date(2025, time.March, 6))
	_, err = svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.ErrorIs(t, err, ErrInvoicePaid)
}

func TestCloseCardBusyMutex(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	repo.addEntry(7, money.FromCents(1000), date(2025, time.March, 1))

	svc := NewService(repo, cardStub{card: card}, &lockerStub{busy: true}, nil, nil)
	svc.WithNow(func() time.Time { return date(2025, time.March, 5) })
	_, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.ErrorIs(t, err, shared.ErrBusy)
}

func TestCloseCardLockConflictCreatesNoBill(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}
	id := repo.addEntry(7, money.FromCents(1000), date(2025, time.March, 1))

	// An entry grabbed between the sweep query and the lock update.
	repo.beforeClose = func() {
		repo.entries[id].IsLocked = true
	}

	svc := newTestService(repo, card, date(2025, time.March, 5))
	_, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 7})
	require.ErrorIs(t, err, shared.ErrLockConflict)
	require.Empty(t, repo.bills)
}

func TestCloseCardUnknownCard(t *testing.T) {
	repo := newMemoryRepo()
	card := masterdata.Card{ID: 7, Name: "Visa", ClosingDay: 10, DueDay: 20}

	svc := newTestService(repo, card, date(2025, time.March, 5))
	_, err := svc.CloseCard(context.Background(), CloseCardInput{CardID: 99})
	require.ErrorIs(t, err, masterdata.ErrCardNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound, "unknown card maps to the not-found class")
}
