package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/core/ports"
)

// PaymentHandler exposes payment submission and history over HTTP.
type PaymentHandler struct {
	service ports.PaymentService
	logger  *slog.Logger
}

func NewPaymentHandler(service ports.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

type createPaymentRequest struct {
	CardID string `json:"card_id"`
	// Amount is a decimal string ("15000.00"); float JSON numbers lose
	// paise precision.
	Amount string `json:"amount"`
	Method string `json:"method"`
	Kind   string `json:"kind"`
}

type paymentResponse struct {
	ID         string  `json:"id"`
	CardID     string  `json:"card_id"`
	Amount     string  `json:"amount"`
	Method     string  `json:"method"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	GatewayRef string  `json:"gateway_ref,omitempty"`
	RetryCount int     `json:"retry_count"`
	CreatedAt  string  `json:"created_at"`
	SettledAt  *string `json:"settled_at,omitempty"`
}

func toPaymentResponse(a *domain.PaymentAttempt) paymentResponse {
	resp := paymentResponse{
		ID:         a.ID.String(),
		CardID:     a.CardID.String(),
		Amount:     a.Amount.StringFixed(2),
		Method:     string(a.Method),
		Kind:       string(a.Kind),
		Status:     string(a.Status),
		GatewayRef: a.GatewayRef,
		RetryCount: a.RetryCount,
		CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.SettledAt != nil {
		s := a.SettledAt.UTC().Format(time.RFC3339)
		resp.SettledAt = &s
	}
	return resp
}

// HandleCreatePayment handles POST /api/v1/payments.
func (h *PaymentHandler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cardID, err := uuid.Parse(req.CardID)
	if err != nil {
		writeJSONError(w, "invalid card id", http.StatusBadRequest)
		return
	}

	kind := domain.PaymentKind(req.Kind)
	if kind == "" {
		kind = domain.KindCustom
	}

	var amount decimal.Decimal
	if kind == domain.KindCustom {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			writeJSONError(w, "invalid amount", http.StatusBadRequest)
			return
		}
	}

	attempt, err := h.service.Pay(r.Context(), domain.AuthContext{
		UserID:   userID,
		DeviceID: r.Header.Get("X-Device-Id"),
	}, domain.PaymentRequest{
		CardID: cardID,
		Amount: amount,
		Method: domain.PaymentMethod(req.Method),
		Kind:   kind,
	})
	if err != nil {
		h.logPaymentError(err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(attempt))
}

// HandleListPayments handles GET /api/v1/payments with optional card_id,
// status, from, to and limit query parameters.
func (h *PaymentHandler) HandleListPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter, err := parseLedgerFilter(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	attempts, err := h.service.History(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("history query failed", "error", err, "user_id", userID)
		writeDomainError(w, err)
		return
	}

	out := make([]paymentResponse, 0, len(attempts))
	for i := range attempts {
		out = append(out, toPaymentResponse(&attempts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

func parseLedgerFilter(r *http.Request) (domain.LedgerFilter, error) {
	var f domain.LedgerFilter
	q := r.URL.Query()

	if v := q.Get("card_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errInvalidFilter("card_id")
		}
		f.CardID = &id
	}
	if v := q.Get("status"); v != "" {
		st := domain.PaymentStatus(v)
		switch st {
		case domain.StatusPending, domain.StatusSuccess, domain.StatusFailed:
			f.Status = &st
		default:
			return f, errInvalidFilter("status")
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errInvalidFilter("from")
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errInvalidFilter("to")
		}
		f.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errInvalidFilter("limit")
		}
		f.Limit = n
	}
	return f, nil
}

func errInvalidFilter(param string) error {
	return fmt.Errorf("invalid %s parameter", param)
}

func (h *PaymentHandler) logPaymentError(err error) {
	// Business rejections are expected traffic; only infrastructure
	// trouble is worth a warning.
	switch {
	case isClientFault(err):
		h.logger.Info("payment rejected", "error", err)
	default:
		h.logger.Warn("payment failed", "error", err)
	}
}
