// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/homeledger/homeledger/internal/shared"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
//
// Conflict-class failures (busy critical section, compare-and-set miss,
// duplicate idempotency key) all answer 409 with a retry hint: an immediate
// safe retry is the correct remediation for every one of them.
func RespondError(w http.ResponseWriter, err error) {
	var partial *shared.PartialError
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrBusy), errors.Is(err, shared.ErrLockConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error()+"; please retry")
	case errors.As(err, &partial):
		Problem(w, http.StatusInternalServerError, "Partial Failure", partial.Error()+"; please retry")
	case errors.As(err, &verr):
		Problem(w, http.StatusBadRequest, "Validation Failed", verr.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
