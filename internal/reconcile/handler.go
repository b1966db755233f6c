package reconcile

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

// Handler exposes period close endpoints.
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

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconciliations", func(r chi.Router) {
		r.Get("/", h.listLocks)
		r.Post("/", h.closePeriod)
	})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	var input ClosePeriodInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, err)
		return
	}

	res, err := h.service.ClosePeriod(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrAlreadyLocked) {
			httpx.Problem(w, http.StatusConflict, "Period Already Locked", err.Error())
			return
		}
		h.logger.Error("close period", slog.Int64("account_id", input.AccountID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.metrics.CountPeriodClosed()
	if res.Adjustment != nil {
		h.metrics.CountAdjustment()
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) listLocks(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "account_id must be an integer")
		return
	}
	locks, err := h.service.ListLocks(r.Context(), accountID)
	if err != nil {
		h.logger.Error("list period locks", slog.Int64("account_id", accountID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, locks)
}
