package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"billpay-processing-system/internal/core/ports"
)

// RewardsHandler exposes the reward balance, history and redemption surface.
type RewardsHandler struct {
	service ports.RewardService
	logger  *slog.Logger
}

func NewRewardsHandler(service ports.RewardService, logger *slog.Logger) *RewardsHandler {
	return &RewardsHandler{
		service: service,
		logger:  logger,
	}
}

type rewardTransactionResponse struct {
	ID                string `json:"id"`
	AttemptID         string `json:"payment_id"`
	BasePoints        int64  `json:"base_points"`
	FullPaymentBonus  int64  `json:"full_payment_bonus"`
	EarlyPaymentBonus int64  `json:"early_payment_bonus"`
	TotalPoints       int64  `json:"total_points"`
	BalanceAfter      int64  `json:"balance_after"`
	CreatedAt         string `json:"created_at"`
}

// HandleGetRewards handles GET /api/v1/rewards.
func (h *RewardsHandler) HandleGetRewards(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	balance, tier, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error("balance lookup failed", "error", err, "user_id", userID)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance": balance,
		"tier":    string(tier),
	})
}

// HandleListRewardTransactions handles GET /api/v1/rewards/transactions.
func (h *RewardsHandler) HandleListRewardTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	txs, err := h.service.Transactions(r.Context(), userID)
	if err != nil {
		h.logger.Error("reward history query failed", "error", err, "user_id", userID)
		writeDomainError(w, err)
		return
	}

	out := make([]rewardTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, rewardTransactionResponse{
			ID:                tx.ID.String(),
			AttemptID:         tx.AttemptID.String(),
			BasePoints:        tx.BasePoints,
			FullPaymentBonus:  tx.FullPaymentBonus,
			EarlyPaymentBonus: tx.EarlyPaymentBonus,
			TotalPoints:       tx.TotalPoints,
			BalanceAfter:      tx.BalanceAfter,
			CreatedAt:         tx.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

type redeemRequest struct {
	Points int64 `json:"points"`
}

// HandleRedeem handles POST /api/v1/rewards/redeem.
func (h *RewardsHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	red, err := h.service.Redeem(r.Context(), userID, req.Points)
	if err != nil {
		if isClientFault(err) {
			h.logger.Info("redemption rejected", "error", err, "user_id", userID)
		} else {
			h.logger.Error("redemption failed", "error", err, "user_id", userID)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":             red.ID.String(),
		"points":         red.Points,
		"cashback_value": red.CashbackValue.StringFixed(2),
		"balance_after":  red.BalanceAfter,
	})
}
