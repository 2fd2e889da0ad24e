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

// OTPClient confirms high-value payments with the OTP collaborator. The
// call is synchronous: the orchestrator blocks on it before touching the
// ledger.
type OTPClient struct {
	client  *http.Client
	baseURL string
}

func NewOTPClient(baseURL string, timeout time.Duration) *OTPClient {
	return &OTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *OTPClient) Verify(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	body, err := json.Marshal(map[string]string{
		"user_id": userID.String(),
		"amount":  amount.StringFixed(2),
	})
	if err != nil {
		return fmt.Errorf("marshal otp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("create otp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("otp service call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return domain.ErrOTPRejected
	default:
		return fmt.Errorf("otp service returned status %s", resp.Status)
	}
}
