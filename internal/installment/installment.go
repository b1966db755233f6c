// Package installment plans installment groups: a total amount divided into
// dated items that sum back exactly. The package is pure; callers persist
// the resulting plan as a single all-or-nothing batch.
package installment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homeledger/homeledger/internal/money"
)

// Item is one planned installment.
type Item struct {
	Amount      money.Money
	DueOn       time.Time
	Index       int // 1-based
	Description string
}

// Plan groups the generated items under a shared identifier.
type Plan struct {
	GroupID uuid.UUID
	Total   money.Money
	Count   int
	Items   []Item
}

// Generate splits total into count items due on consecutive calendar months
// starting at firstDue. Item i is described as "template (i/count)". Due
// dates keep firstDue's day of month, clamped to the last valid day when the
// target month is shorter.
func Generate(total money.Money, count uint32, firstDue time.Time, template string) (Plan, error) {
	amounts, err := money.Split(total, count)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		GroupID: uuid.New(),
		Total:   total,
		Count:   int(count),
		Items:   make([]Item, count),
	}
	for i := range plan.Items {
		plan.Items[i] = Item{
			Amount:      amounts[i],
			DueOn:       AddMonthsClamped(firstDue, i),
			Index:       i + 1,
			Description: fmt.Sprintf("%s (%d/%d)", template, i+1, count),
		}
	}
	return plan, nil
}

// AddMonthsClamped steps t forward by whole calendar months, clamping the
// day of month to the target month's last day. time.AddDate would normalize
// Jan 31 + 1 month into Mar 2/3 instead.
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}

// ClampDay returns the given day of month within year/month, clamped to the
// month's length. Used for card due days and recurring bill days.
func ClampDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := daysIn(year, month, loc); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
