package bill

import (
	"context"
	"log/slog"
	"time"

	"github.com/homeledger/homeledger/internal/installment"
)

// Service orchestrates payable bill lifecycle.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create inserts a standalone bill.
func (s *Service) Create(ctx context.Context, input CreateBillInput) (PayableBill, error) {
	return s.repo.CreateBill(ctx, input)
}

// CreateSeries materializes an installment group of bills: the total is
// split without drift and each bill lands a calendar month after the
// previous, same day of month. The batch persists all-or-nothing.
func (s *Service) CreateSeries(ctx context.Context, input CreateSeriesInput) ([]PayableBill, error) {
	plan, err := installment.Generate(input.Total, input.Count, input.FirstDueOn, input.Description)
	if err != nil {
		return nil, err
	}

	inputs := make([]CreateBillInput, len(plan.Items))
	total := plan.Count
	for i, item := range plan.Items {
		number := item.Index
		groupID := plan.GroupID
		inputs[i] = CreateBillInput{
			Description:       item.Description,
			Amount:            item.Amount,
			Category:          input.Category,
			DueOn:             item.DueOn,
			GroupID:           &groupID,
			InstallmentNumber: &number,
			InstallmentTotal:  &total,
		}
	}
	return s.repo.CreateBillBatch(ctx, inputs)
}

// Get returns one bill.
func (s *Service) Get(ctx context.Context, id int64) (PayableBill, error) {
	return s.repo.GetBill(ctx, id)
}

// List returns filtered bills.
func (s *Service) List(ctx context.Context, filter BillFilter) ([]PayableBill, error) {
	return s.repo.ListBills(ctx, filter)
}

// SoftDelete removes an unpaid bill from view, keeping it for audit.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteBill(ctx, id)
}

// SweepOverdue marks pending bills past due as overdue.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	n, err := s.repo.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 && s.logger != nil {
		s.logger.Info("bills marked overdue", slog.Int64("count", n))
	}
	return n, nil
}

// CreateRecurring registers a monthly template.
func (s *Service) CreateRecurring(ctx context.Context, input CreateRecurringInput) (RecurringBill, error) {
	return s.repo.CreateRecurring(ctx, input)
}

// ListRecurring returns templates.
func (s *Service) ListRecurring(ctx context.Context, activeOnly bool) ([]RecurringBill, error) {
	return s.repo.ListRecurring(ctx, activeOnly)
}

// SetRecurringActive toggles a template.
func (s *Service) SetRecurringActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetRecurringActive(ctx, id, active)
}

// MaterializeMonth creates this month's bill for each active template that
// does not have one yet. Re-running within the same month is a no-op, so
// the worker cron can fire daily.
func (s *Service) MaterializeMonth(ctx context.Context, month time.Time) (int64, error) {
	templates, err := s.repo.ListRecurring(ctx, true)
	if err != nil {
		return 0, err
	}
	var created int64
	for _, tpl := range templates {
		exists, err := s.repo.HasBillForRecurringMonth(ctx, tpl.ID, month)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		recurringID := tpl.ID
		dueOn := installment.ClampDay(month.Year(), month.Month(), tpl.DueDay, month.Location())
		if _, err := s.repo.CreateBill(ctx, CreateBillInput{
			Description: tpl.Description,
			Amount:      tpl.Amount,
			Category:    tpl.Category,
			DueOn:       dueOn,
			RecurringID: &recurringID,
		}); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 && s.logger != nil {
		s.logger.Info("recurring bills materialized",
			slog.Int64("count", created), slog.String("month", month.Format("2006-01")))
	}
	return created, nil
}
