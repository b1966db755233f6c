package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/homeledger/homeledger/internal/money"
)

// ctxCheckRepo fails balance derivation when the query context is already
// canceled, the way a real database driver would.
type ctxCheckRepo struct {
	*memoryRepo
}

func (r ctxCheckRepo) DerivedBalance(ctx context.Context, accountID int64, asOf *time.Time) (money.Money, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.memoryRepo.DerivedBalance(ctx, accountID, asOf)
}

func TestGetBalanceSurvivesCallerCancellation(t *testing.T) {
	repo := newMemoryRepo()
	accountID := int64(1)
	_, err := repo.CreateEntry(context.Background(), CreateEntryInput{
		Description: "Salary",
		Amount:      money.FromCents(5000),
		Kind:        KindIncome,
		OccurredOn:  date(2025, time.March, 1),
		Status:      StatusPaid,
		AccountID:   &accountID,
	})
	require.NoError(t, err)

	h := NewHandler(slog.Default(), NewService(ctxCheckRepo{repo}), "BRL")

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("accountID", "1")
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), chi.RouteCtxKey, rctx))
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/balances/1", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.getBalance(rr, req)

	// Coalesced callers wait on the winning request's derivation, so it
	// must not die with that request's context.
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp balanceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "50.00", resp.Balance)
}
