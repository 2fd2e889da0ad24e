package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"billpay-processing-system/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

// isClientFault reports whether err is a business rejection of the caller's
// request rather than an infrastructure failure.
func isClientFault(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidAmount,
		domain.ErrCardNotEligible,
		domain.ErrInvalidCard,
		domain.ErrOTPRejected,
		domain.ErrPaymentDeclined,
		domain.ErrDuplicatePayment,
		domain.ErrDailyLimitExceeded,
		domain.ErrCardLimitReached,
		domain.ErrInsufficientPoints,
		domain.ErrCardNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
// Anything unrecognized is a 500 with a generic message so internals do
// not leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrCardNotEligible),
		errors.Is(err, domain.ErrInvalidCard):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrOTPRejected):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrPaymentDeclined):
		writeJSONError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrDuplicatePayment):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrDailyLimitExceeded),
		errors.Is(err, domain.ErrCardLimitReached),
		errors.Is(err, domain.ErrInsufficientPoints):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrCardNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrGatewayUnavailable):
		writeJSONError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeJSONError(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
