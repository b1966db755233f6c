// Package ledger owns the rules for what is legal to write to the ledger:
// soft deletes, locked-entry immutability, the period-close boundary, and
// the derived account balance.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/homeledger/homeledger/internal/money"
)

var (
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrEntryLocked indicates the entry belongs to a closed invoice or
	// period. Locked history is immutable; corrections are new entries.
	ErrEntryLocked = errors.New("ledger: entry is locked and cannot be changed")
	// ErrPeriodClosed indicates the write targets a date on or before the
	// account's latest period lock.
	ErrPeriodClosed   = errors.New("ledger: period is closed for this date")
	ErrInvalidKind    = errors.New("ledger: invalid entry kind")
	ErrInvalidFunding = errors.New("ledger: at most one funding source allowed")
)

// EntryKind enumerates money movement directions.
type EntryKind string

const (
	KindIncome   EntryKind = "INCOME"
	KindExpense  EntryKind = "EXPENSE"
	KindTransfer EntryKind = "TRANSFER"
)

// EntryStatus enumerates settlement states.
type EntryStatus string

const (
	StatusPending EntryStatus = "PENDING"
	StatusPaid    EntryStatus = "PAID"
)

// Categories the engine assigns itself. Everything else is free form.
const (
	CategoryCardInvoice = "CARD_INVOICE"
	CategoryAdjustment  = "ADJUSTMENT"
)

// Entry is a single dated money movement.
type Entry struct {
	ID               int64       `json:"id"`
	Description      string      `json:"description"`
	Amount           money.Money `json:"amount"`
	Kind             EntryKind   `json:"kind"`
	Category         string      `json:"category,omitempty"`
	OccurredOn       time.Time   `json:"occurred_on"`
	Status           EntryStatus `json:"status"`
	AccountID        *int64      `json:"account_id,omitempty"`
	CardID           *int64      `json:"card_id,omitempty"`
	IsLocked         bool        `json:"is_locked"`
	GroupID          *uuid.UUID  `json:"group_id,omitempty"`
	InstallmentIndex *int        `json:"installment_index,omitempty"`
	InstallmentTotal *int        `json:"installment_total,omitempty"`
	BillID           *int64      `json:"bill_id,omitempty"`
	DeletedAt        *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Signed returns the entry's effect on a balance: income adds, expense
// subtracts. Transfers are neutral at the single-account scope tracked here.
func (e Entry) Signed() money.Money {
	switch e.Kind {
	case KindIncome:
		return e.Amount
	case KindExpense:
		return -e.Amount
	default:
		return 0
	}
}

// CreateEntryInput for inserting entries.
type CreateEntryInput struct {
	Description      string      `json:"description" validate:"required"`
	Amount           money.Money `json:"amount"`
	Kind             EntryKind   `json:"kind" validate:"required"`
	Category         string      `json:"category"`
	OccurredOn       time.Time   `json:"occurred_on" validate:"required"`
	Status           EntryStatus `json:"status"`
	AccountID        *int64      `json:"account_id"`
	CardID           *int64      `json:"card_id"`
	IsLocked         bool        `json:"-"`
	GroupID          *uuid.UUID  `json:"-"`
	InstallmentIndex *int        `json:"-"`
	InstallmentTotal *int        `json:"-"`
	BillID           *int64      `json:"-"`
}

// UpdateEntryInput patches mutable entry fields.
type UpdateEntryInput struct {
	Description *string      `json:"description"`
	Amount      *money.Money `json:"amount"`
	Category    *string      `json:"category"`
	OccurredOn  *time.Time   `json:"occurred_on"`
	Status      *EntryStatus `json:"status"`
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	AccountID      *int64
	CardID         *int64
	From           *time.Time
	To             *time.Time
	Status         EntryStatus
	OnlyUnlocked   bool
	IncludeDeleted bool
}

// CreateCardPurchaseInput materializes an installment purchase on a card.
type CreateCardPurchaseInput struct {
	CardID      int64       `json:"card_id" validate:"required"`
	Description string      `json:"description" validate:"required"`
	Total       money.Money `json:"total"`
	Count       uint32      `json:"count" validate:"required,min=1"`
	FirstDate   time.Time   `json:"first_date" validate:"required"`
}
