// Package gateway holds the clients for the external collaborators: the
// payment rail, the core-banking bill feed and the OTP service. The core
// depends only on their port contracts; everything here is replaceable.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// HTTPGateway charges through the payment rail's HTTP API. The rail
// deduplicates on the attempt id, so repeating a charge with the same id is
// safe; the orchestrator leans on that for its retry budget.
type HTTPGateway struct {
	client  *http.Client
	baseURL string
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type chargeRequest struct {
	AttemptID string `json:"attempt_id"`
	CardRef   string `json:"card_ref"`
	Amount    string `json:"amount"`
	Method    string `json:"method"`
}

type chargeResponse struct {
	Outcome    string `json:"outcome"`
	GatewayRef string `json:"gateway_ref"`
	Reason     string `json:"reason"`
}

func (g *HTTPGateway) Charge(ctx context.Context, attemptID uuid.UUID, cardRef string, amount decimal.Decimal, method domain.PaymentMethod) (domain.ChargeResult, error) {
	body, err := json.Marshal(chargeRequest{
		AttemptID: attemptID.String(),
		CardRef:   cardRef,
		Amount:    amount.StringFixed(2),
		Method:    string(method),
	})
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewBuffer(body))
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("create charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", attemptID.String())

	resp, err := g.client.Do(req)
	if err != nil {
		// Transport failures are transient by the orchestrator's contract.
		return domain.ChargeResult{}, fmt.Errorf("gateway call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return domain.ChargeResult{Outcome: domain.ChargeTransient}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ChargeResult{}, fmt.Errorf("gateway returned status %s", resp.Status)
	}

	var cr chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return domain.ChargeResult{}, fmt.Errorf("decode charge response: %w", err)
	}

	switch domain.ChargeOutcome(cr.Outcome) {
	case domain.ChargeSuccess:
		return domain.ChargeResult{Outcome: domain.ChargeSuccess, GatewayRef: cr.GatewayRef}, nil
	case domain.ChargeDeclined:
		return domain.ChargeResult{Outcome: domain.ChargeDeclined, DeclineReason: cr.Reason}, nil
	case domain.ChargeTransient:
		return domain.ChargeResult{Outcome: domain.ChargeTransient}, nil
	default:
		return domain.ChargeResult{}, fmt.Errorf("unknown charge outcome %q", cr.Outcome)
	}
}
