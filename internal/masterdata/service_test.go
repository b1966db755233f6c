package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	accounts map[int64]Account
	cards    map[int64]Card
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]Account), cards: make(map[int64]Card)}
}

func (r *memoryRepo) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	r.nextID++
	acc := Account{ID: r.nextID, Name: input.Name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.accounts[acc.ID] = acc
	return acc, nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	return out, nil
}

func (r *memoryRepo) CreateCard(ctx context.Context, input CreateCardInput) (Card, error) {
	r.nextID++
	c := Card{ID: r.nextID, Name: input.Name, ClosingDay: input.ClosingDay, DueDay: input.DueDay}
	r.cards[c.ID] = c
	return c, nil
}

func (r *memoryRepo) GetCard(ctx context.Context, id int64) (Card, error) {
	c, ok := r.cards[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListCards(ctx context.Context) ([]Card, error) {
	var out []Card
	for _, c := range r.cards {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) UpdateCard(ctx context.Context, id int64, input UpdateCardInput) (Card, error) {
	c, ok := r.cards[id]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	if input.Name != nil {
		c.Name = *input.Name
	}
	if input.ClosingDay != nil {
		c.ClosingDay = *input.ClosingDay
	}
	if input.DueDay != nil {
		c.DueDay = *input.DueDay
	}
	r.cards[id] = c
	return c, nil
}

func TestCreateCardValidatesCycleDays(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateCard(ctx, CreateCardInput{Name: "Visa", ClosingDay: 0, DueDay: 10})
	require.ErrorIs(t, err, ErrInvalidCycleDay)

	_, err = svc.CreateCard(ctx, CreateCardInput{Name: "Visa", ClosingDay: 25, DueDay: 32})
	require.ErrorIs(t, err, ErrInvalidCycleDay)

	card, err := svc.CreateCard(ctx, CreateCardInput{Name: "Visa", ClosingDay: 25, DueDay: 4})
	require.NoError(t, err)
	require.Equal(t, 25, card.ClosingDay)
	require.Equal(t, 4, card.DueDay)
}

func TestUpdateCard(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, CreateCardInput{Name: "Visa", ClosingDay: 25, DueDay: 4})
	require.NoError(t, err)

	bad := 40
	_, err = svc.UpdateCard(ctx, card.ID, UpdateCardInput{DueDay: &bad})
	require.ErrorIs(t, err, ErrInvalidCycleDay)

	day := 10
	updated, err := svc.UpdateCard(ctx, card.ID, UpdateCardInput{DueDay: &day})
	require.NoError(t, err)
	require.Equal(t, 10, updated.DueDay)
	require.Equal(t, 25, updated.ClosingDay)
}

func TestGetAccountNotFound(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.GetAccount(context.Background(), 99)
	require.ErrorIs(t, err, ErrAccountNotFound)
}
