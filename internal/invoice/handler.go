package invoice

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/homeledger/homeledger/internal/observability"
	"github.com/homeledger/homeledger/internal/platform/httpx"
)

// Handler exposes the invoice close endpoint.
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

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices/close", h.closeCard)
}

func (h *Handler) closeCard(w http.ResponseWriter, r *http.Request) {
	var input CloseCardInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, err)
		return
	}

	b, err := h.service.CloseCard(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyInvoice):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Empty Invoice", err.Error())
		case errors.Is(err, ErrInvoicePaid):
			httpx.Problem(w, http.StatusConflict, "Invoice Already Paid", err.Error())
		default:
			h.logger.Error("close card invoice", slog.Int64("card_id", input.CardID), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	h.metrics.CountInvoiceClosed()
	httpx.JSON(w, http.StatusCreated, b)
}
