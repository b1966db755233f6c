package payment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/homeledger/homeledger/internal/observability"
	"github.com/homeledger/homeledger/internal/platform/httpx"
)

// Handler exposes settlement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), metrics: metrics}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.pay)
	r.Get("/payments/funds-check", h.checkFunds)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var input PayInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, err)
		return
	}

	receipt, err := h.service.Pay(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSource):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Source", err.Error())
		case errors.Is(err, ErrBillAlreadyPaid):
			httpx.Problem(w, http.StatusConflict, "Bill Already Paid", err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Funds", err.Error())
		default:
			h.logger.Error("pay bill", slog.Int64("bill_id", input.BillID), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	h.metrics.CountBillPaid()
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) checkFunds(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "account_id must be an integer")
		return
	}
	billID, err := strconv.ParseInt(r.URL.Query().Get("bill_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "bill_id must be an integer")
		return
	}

	check, err := h.service.CheckFunds(r.Context(), accountID, billID)
	if err != nil {
		h.logger.Error("funds check", slog.Int64("bill_id", billID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}
