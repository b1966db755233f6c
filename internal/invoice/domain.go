// Package invoice closes a card's billing cycle: it sweeps the card's open
// purchase entries into one payable bill and locks them, so each purchase
// is counted in exactly one invoice.
package invoice

import (
	"errors"
	"time"

	"github.com/homeledger/homeledger/internal/installment"
	"github.com/homeledger/homeledger/internal/masterdata"
	"github.com/homeledger/homeledger/internal/money"
)

var (
	// ErrEmptyInvoice indicates the card has no open purchases summing to a
	// positive amount.
	ErrEmptyInvoice = errors.New("invoice: no open purchases to close")
	// ErrInvoicePaid indicates the period's invoice was already settled;
	// late purchases must wait for the next cycle.
	ErrInvoicePaid = errors.New("invoice: period invoice already paid")
)

// CloseCardInput requests an invoice close.
type CloseCardInput struct {
	CardID int64 `json:"card_id" validate:"required"`
}

// CloseParams is everything the repository needs to create the bill and
// lock its source entries in one transaction.
type CloseParams struct {
	CardID         int64
	Description    string
	Category       string
	Amount         money.Money
	DueOn          time.Time
	Period         string
	EntryIDs       []int64
	IdempotencyKey string
}

// NextDueDate computes when the invoice closing today falls due. Once
// today reaches the closing day the cycle has rolled over, so the due day
// lands in the following month; otherwise it is still this month's. The
// month is stepped by number, never by date arithmetic: AddDate on Jan 31
// would normalize through February into March.
func NextDueDate(card masterdata.Card, today time.Time) time.Time {
	year, month, _ := today.Date()
	if today.Day() >= card.ClosingDay {
		month++
	}
	return installment.ClampDay(year, month, card.DueDay, today.Location())
}
