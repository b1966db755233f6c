package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/masterdata"
	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/shared"
)

// CardSource resolves the card being closed.
type CardSource interface {
	GetCard(ctx context.Context, id int64) (masterdata.Card, error)
}

// Locker serializes closes per card.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service closes card billing cycles.
type Service struct {
	repo   Repository
	cards  CardSource
	mutex  Locker
	audit  shared.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the invoice service.
func NewService(repo Repository, cards CardSource, mutex Locker, audit shared.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cards:  cards,
		mutex:  mutex,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CloseCard sweeps the card's open purchases into one payable bill and
// locks them. The per-card mutex plus the locked-row compare-and-set make
// a concurrent double close impossible: one caller wins, the other sees
// ErrBusy or an empty sweep.
func (s *Service) CloseCard(ctx context.Context, input CloseCardInput) (bill.PayableBill, error) {
	card, err := s.cards.GetCard(ctx, input.CardID)
	if err != nil {
		return bill.PayableBill{}, err
	}

	release, err := s.mutex.Acquire(ctx, shared.CardCloseKey(card.ID))
	if err != nil {
		return bill.PayableBill{}, err
	}
	defer release()

	today := s.now()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	entries, err := s.repo.ListOpenCardEntries(ctx, card.ID, today)
	if err != nil {
		return bill.PayableBill{}, err
	}

	var total money.Money
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		total += e.Amount
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 || total <= 0 {
		return bill.PayableBill{}, ErrEmptyInvoice
	}

	dueOn := NextDueDate(card, today)
	period := dueOn.Format("2006-01")

	b, err := s.repo.CloseInvoice(ctx, CloseParams{
		CardID:         card.ID,
		Description:    fmt.Sprintf("%s invoice %s", card.Name, period),
		Category:       ledger.CategoryCardInvoice,
		Amount:         total,
		DueOn:          dueOn,
		Period:         period,
		EntryIDs:       ids,
		IdempotencyKey: shared.InvoiceKey(card.ID, period),
	})
	if err != nil {
		return bill.PayableBill{}, err
	}

	if s.audit != nil {
		if auditErr := s.audit.Record(ctx, shared.AuditLog{
			Action:   "invoice.close",
			Entity:   "card",
			EntityID: strconv.FormatInt(card.ID, 10),
			Meta: map[string]any{
				"bill_id": b.ID,
				"period":  period,
				"amount":  total.String(),
				"entries": len(ids),
			},
			At: s.now(),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit record failed",
				slog.String("action", "invoice.close"), slog.Any("error", auditErr))
		}
	}

	s.logger.InfoContext(ctx, "card invoice closed",
		slog.Int64("card_id", card.ID),
		slog.Int64("bill_id", b.ID),
		slog.String("period", period),
		slog.String("amount", total.String()),
		slog.Int("entries", len(ids)))

	return b, nil
}
