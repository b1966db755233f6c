// Package reconcile closes accounting periods: the account's calculated
// balance is squared against the real-world confirmed balance, any drift
// becomes an adjustment entry, and everything up to the period end is
// locked behind an immutable snapshot.
package reconcile

import (
	"errors"
	"time"

	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/money"
)

// ErrAlreadyLocked indicates the account already has a period lock at or
// after the requested period end. Locks only move forward.
var ErrAlreadyLocked = errors.New("reconcile: period already locked for this account")

// PeriodLock is the immutable snapshot left behind by a period close. It
// anchors balance derivation so history before it never has to be summed
// again.
type PeriodLock struct {
	ID                int64       `json:"id"`
	AccountID         int64       `json:"account_id"`
	PeriodEnd         time.Time   `json:"period_end"`
	ConfirmedBalance  money.Money `json:"confirmed_balance"`
	CalculatedBalance money.Money `json:"calculated_balance"`
	AdjustmentEntryID *int64      `json:"adjustment_entry_id,omitempty"`
	EntriesLocked     int64       `json:"entries_locked"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ClosePeriodInput requests a period close.
type ClosePeriodInput struct {
	AccountID        int64       `json:"account_id" validate:"required"`
	PeriodEnd        time.Time   `json:"period_end" validate:"required"`
	ConfirmedBalance money.Money `json:"confirmed_balance"`
}

// Result is the outcome of a period close.
type Result struct {
	Lock       PeriodLock    `json:"lock"`
	Adjustment *ledger.Entry `json:"adjustment,omitempty"`
}

// CloseParams is everything the repository needs to close the period in
// one transaction.
type CloseParams struct {
	AccountID      int64
	PeriodEnd      time.Time
	Confirmed      money.Money
	Calculated     money.Money
	Diff           money.Money
	IdempotencyKey string
}
