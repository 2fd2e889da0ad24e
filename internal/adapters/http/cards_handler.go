package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/core/ports"
)

// CardsHandler exposes card registration and management.
type CardsHandler struct {
	service ports.CardService
	logger  *slog.Logger
}

func NewCardsHandler(service ports.CardService, logger *slog.Logger) *CardsHandler {
	return &CardsHandler{
		service: service,
		logger:  logger,
	}
}

type addCardRequest struct {
	PAN         string `json:"pan"`
	Network     string `json:"network"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
}

type cardResponse struct {
	ID       string `json:"id"`
	Last4    string `json:"last4"`
	Network  string `json:"network"`
	Verified bool   `json:"verified"`
	Primary  bool   `json:"primary"`
}

func toCardResponse(c *domain.Card) cardResponse {
	return cardResponse{
		ID:       c.ID.String(),
		Last4:    c.Last4,
		Network:  c.Network,
		Verified: c.Verified,
		Primary:  c.Primary,
	}
}

// HandleAddCard handles POST /api/v1/cards.
func (h *CardsHandler) HandleAddCard(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req addCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	card, err := h.service.AddCard(r.Context(), userID, req.PAN, req.Network, req.ExpiryMonth, req.ExpiryYear)
	if err != nil {
		if isClientFault(err) {
			h.logger.Info("card rejected", "error", err, "user_id", userID)
		} else {
			h.logger.Error("card registration failed", "error", err, "user_id", userID)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCardResponse(card))
}

// HandleListCards handles GET /api/v1/cards.
func (h *CardsHandler) HandleListCards(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cards, err := h.service.ListCards(r.Context(), userID)
	if err != nil {
		h.logger.Error("card list failed", "error", err, "user_id", userID)
		writeDomainError(w, err)
		return
	}

	out := make([]cardResponse, 0, len(cards))
	for i := range cards {
		out = append(out, toCardResponse(&cards[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": out})
}

// HandleRemoveCard handles DELETE /api/v1/cards/{cardID}.
func (h *CardsHandler) HandleRemoveCard(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		writeJSONError(w, "invalid card id", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveCard(r.Context(), userID, cardID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetPrimary handles POST /api/v1/cards/{cardID}/primary.
func (h *CardsHandler) HandleSetPrimary(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		writeJSONError(w, "invalid card id", http.StatusBadRequest)
		return
	}

	if err := h.service.SetPrimary(r.Context(), userID, cardID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
