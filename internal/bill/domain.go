// Package bill manages payable bills: standalone, installment series, and
// monthly recurring templates. A bill transitions PENDING to PAID exactly
// once, through the payment processor, which stamps the linked entry.
package bill

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/shared"
)

// Both sentinels wrap shared.ErrNotFound so generic error mapping answers
// 404 without knowing this package.
var (
	ErrBillNotFound      = fmt.Errorf("bill: %w", shared.ErrNotFound)
	ErrRecurringNotFound = fmt.Errorf("bill: recurring template %w", shared.ErrNotFound)
)

// BillStatus enumerates payable bill statuses.
type BillStatus string

const (
	StatusPending BillStatus = "PENDING"
	StatusPaid    BillStatus = "PAID"
	StatusOverdue BillStatus = "OVERDUE"
)

// PayableBill model.
type PayableBill struct {
	ID                int64       `json:"id"`
	Description       string      `json:"description"`
	Amount            money.Money `json:"amount"`
	Category          string      `json:"category,omitempty"`
	DueOn             time.Time   `json:"due_on"`
	Status            BillStatus  `json:"status"`
	GroupID           *uuid.UUID  `json:"group_id,omitempty"`
	InstallmentNumber *int        `json:"installment_number,omitempty"`
	InstallmentTotal  *int        `json:"installment_total,omitempty"`
	CardID            *int64      `json:"card_id,omitempty"`
	RecurringID       *int64      `json:"recurring_id,omitempty"`
	PaymentEntryID    *int64      `json:"payment_entry_id,omitempty"`
	PaidOn            *time.Time  `json:"paid_on,omitempty"`
	DeletedAt         *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// RecurringBill is a monthly template materialized into one PayableBill per
// month by the worker.
type RecurringBill struct {
	ID          int64       `json:"id"`
	Description string      `json:"description"`
	Amount      money.Money `json:"amount"`
	DueDay      int         `json:"due_day"`
	Category    string      `json:"category,omitempty"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CreateBillInput for inserting bills.
type CreateBillInput struct {
	Description       string      `json:"description" validate:"required"`
	Amount            money.Money `json:"amount"`
	Category          string      `json:"category"`
	DueOn             time.Time   `json:"due_on" validate:"required"`
	GroupID           *uuid.UUID  `json:"-"`
	InstallmentNumber *int        `json:"-"`
	InstallmentTotal  *int        `json:"-"`
	CardID            *int64      `json:"-"`
	RecurringID       *int64      `json:"-"`
}

// CreateSeriesInput materializes an installment group of bills.
type CreateSeriesInput struct {
	Description string      `json:"description" validate:"required"`
	Total       money.Money `json:"total"`
	Count       uint32      `json:"count" validate:"required,min=1"`
	FirstDueOn  time.Time   `json:"first_due_on" validate:"required"`
	Category    string      `json:"category"`
}

// CreateRecurringInput for recurring templates.
type CreateRecurringInput struct {
	Description string      `json:"description" validate:"required"`
	Amount      money.Money `json:"amount"`
	DueDay      int         `json:"due_day" validate:"required,min=1,max=31"`
	Category    string      `json:"category"`
}

// BillFilter narrows ListBills.
type BillFilter struct {
	Status BillStatus
	Month  *time.Time // any day within the wanted month
}
