// Package payment settles payable bills: one expense entry on the paying
// account plus the bill's PENDING to PAID transition, committed together.
package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/money"
)

var (
	// ErrBillAlreadyPaid indicates the bill was settled before; a bill is
	// paid at most once.
	ErrBillAlreadyPaid = errors.New("payment: bill already paid")
	// ErrInsufficientFunds indicates the account balance does not cover the
	// bill. Advisory: the caller may override and let the balance go
	// negative.
	ErrInsufficientFunds = errors.New("payment: insufficient funds")
	// ErrInvalidSource indicates the funding source is missing or
	// ambiguous. A payment is funded by exactly one account or one card.
	ErrInvalidSource = errors.New("payment: exactly one of account_id or card_id must be set")
)

// PayInput requests a bill settlement. The funding source is either an
// account (single entry, balance checked) or a card; a card payment may be
// split into monthly installments.
type PayInput struct {
	BillID    int64     `json:"bill_id" validate:"required"`
	AccountID int64     `json:"account_id"`
	CardID    int64     `json:"card_id"`
	PaidOn    time.Time `json:"paid_on"`
	// Installments splits a card payment into N monthly expense entries.
	// Ignored for account payments; zero means one.
	Installments uint32 `json:"installments"`
	// OverrideInsufficientFunds proceeds even when the account balance
	// does not cover the amount.
	OverrideInsufficientFunds bool `json:"override_insufficient_funds"`
}

// Receipt is the outcome of a settlement. Entry is the entry stamped on the
// bill (the first installment for card plans); Entries lists every entry
// created. Balance is the paying account's balance after settlement and is
// zero for card-funded payments.
type Receipt struct {
	Bill    bill.PayableBill `json:"bill"`
	Entry   ledger.Entry     `json:"entry"`
	Entries []ledger.Entry   `json:"entries,omitempty"`
	Balance money.Money      `json:"balance"`
}

// FundsCheck reports whether an account can cover an amount.
type FundsCheck struct {
	AccountID int64       `json:"account_id"`
	Amount    money.Money `json:"amount"`
	Balance   money.Money `json:"balance"`
	Covered   bool        `json:"covered"`
}

// EntryParams describes one ledger entry a settlement writes. Exactly one
// of AccountID or CardID is set.
type EntryParams struct {
	Description      string
	Amount           money.Money
	Category         string
	OccurredOn       time.Time
	AccountID        *int64
	CardID           *int64
	GroupID          *uuid.UUID
	InstallmentIndex *int
	InstallmentTotal *int
}

// SettleParams is everything the repository needs to settle a bill in one
// transaction. The first entry's id is stamped on the bill.
type SettleParams struct {
	BillID         int64
	PaidOn         time.Time
	Entries        []EntryParams
	IdempotencyKey string
}
