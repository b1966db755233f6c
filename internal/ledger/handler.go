package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/homeledger/homeledger/internal/money"
	"github.com/homeledger/homeledger/internal/platform/httpx"
)

var balanceGroup singleflight.Group

// Handler manages ledger entry endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	currency string
}

// NewHandler builds Handler instance. currency is the ISO code used for
// display formatting only; arithmetic never touches it.
func NewHandler(logger *slog.Logger, service *Service, currency string) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), currency: currency}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.listEntries)
		r.Post("/", h.createEntry)
		r.Post("/card-purchases", h.createCardPurchase)
		r.Get("/{id}", h.getEntry)
		r.Patch("/{id}", h.updateEntry)
		r.Delete("/{id}", h.deleteEntry)
	})
	r.Get("/balances/{accountID}", h.getBalance)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var input CreateEntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) createCardPurchase(w http.ResponseWriter, r *http.Request) {
	var input CreateCardPurchaseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.CreateCardInstallments(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entries)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var input UpdateEntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), id, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.SoftDeleteEntry(r.Context(), id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	AccountID int64  `json:"account_id"`
	AsOf      string `json:"as_of,omitempty"`
	Balance   string `json:"balance"`
	Display   string `json:"display"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var asOf *time.Time
	resp := balanceResponse{AccountID: accountID}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		asOf = &t
		resp.AsOf = raw
	}
	// Concurrent requests for the same balance share one derivation. The
	// query context must outlive the winning request, since other callers
	// wait on its result.
	key := strconv.FormatInt(accountID, 10) + ":" + resp.AsOf
	qctx := context.WithoutCancel(r.Context())
	result, err, _ := balanceGroup.Do(key, func() (any, error) {
		return h.service.Balance(qctx, accountID, asOf)
	})
	if err != nil {
		h.logger.Error("derive balance", slog.Any("error", err), slog.Int64("account_id", accountID))
		httpx.RespondError(w, err)
		return
	}
	balance := result.(money.Money)
	resp.Balance = balance.String()
	resp.Display = balance.Display(h.currency)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEntryLocked), errors.Is(err, ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Locked", err.Error())
	case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrInvalidFunding):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Entry", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func filterFromQuery(r *http.Request) (EntryFilter, error) {
	var filter EntryFilter
	q := r.URL.Query()
	if raw := q.Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.AccountID = &id
	}
	if raw := q.Get("card_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.CardID = &id
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, err
		}
		filter.To = &t
	}
	filter.Status = EntryStatus(q.Get("status"))
	filter.OnlyUnlocked = q.Get("open") == "true"
	return filter, nil
}
