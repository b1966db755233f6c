package masterdata

import (
	"context"
	"errors"
)

// Service validates and persists funding sources.
type Service struct {
	repo Repository
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateAccount inserts a new bank account.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	if input.Name == "" {
		return Account{}, errors.New("masterdata: account name required")
	}
	return s.repo.CreateAccount(ctx, input)
}

// GetAccount returns an account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns all accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// CreateCard inserts a new credit card after validating its billing cycle.
func (s *Service) CreateCard(ctx context.Context, input CreateCardInput) (Card, error) {
	if input.Name == "" {
		return Card{}, errors.New("masterdata: card name required")
	}
	if !validCycleDay(input.ClosingDay) || !validCycleDay(input.DueDay) {
		return Card{}, ErrInvalidCycleDay
	}
	return s.repo.CreateCard(ctx, input)
}

// GetCard returns a card by id.
func (s *Service) GetCard(ctx context.Context, id int64) (Card, error) {
	return s.repo.GetCard(ctx, id)
}

// ListCards returns all cards.
func (s *Service) ListCards(ctx context.Context) ([]Card, error) {
	return s.repo.ListCards(ctx)
}

// UpdateCard patches a card's name or billing cycle.
func (s *Service) UpdateCard(ctx context.Context, id int64, input UpdateCardInput) (Card, error) {
	if input.ClosingDay != nil && !validCycleDay(*input.ClosingDay) {
		return Card{}, ErrInvalidCycleDay
	}
	if input.DueDay != nil && !validCycleDay(*input.DueDay) {
		return Card{}, ErrInvalidCycleDay
	}
	return s.repo.UpdateCard(ctx, id, input)
}

func validCycleDay(day int) bool {
	return day >= 1 && day <= 31
}
