// Package masterdata manages the funding sources every ledger operation
// references: bank accounts and credit cards.
package masterdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/homeledger/homeledger/internal/shared"
)

// The not-found sentinels wrap shared.ErrNotFound so callers that only
// care about the class (HTTP mapping, logging) match without importing
// this package's sentinels.
var (
	ErrAccountNotFound = fmt.Errorf("masterdata: account %w", shared.ErrNotFound)
	ErrCardNotFound    = fmt.Errorf("masterdata: card %w", shared.ErrNotFound)
	ErrInvalidCycleDay = errors.New("masterdata: cycle day must be between 1 and 31")
)

// Account is a bank account. Its balance is never stored; it is derived
// from ledger entries, anchored by period-lock snapshots.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Card is a credit card with a billing cycle. Purchases accumulate open on
// the card until the closer sweeps them into an invoice.
type Card struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ClosingDay int       `json:"closing_day"`
	DueDay     int       `json:"due_day"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateAccountInput for creating accounts.
type CreateAccountInput struct {
	Name string `json:"name" validate:"required"`
}

// CreateCardInput for creating cards.
type CreateCardInput struct {
	Name       string `json:"name" validate:"required"`
	ClosingDay int    `json:"closing_day" validate:"required,min=1,max=31"`
	DueDay     int    `json:"due_day" validate:"required,min=1,max=31"`
}

// UpdateCardInput patches a card's billing cycle.
type UpdateCardInput struct {
	Name       *string `json:"name"`
	ClosingDay *int    `json:"closing_day"`
	DueDay     *int    `json:"due_day"`
}
