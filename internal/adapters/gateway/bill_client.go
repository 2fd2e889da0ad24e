package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// BillClient reads statements from the core-banking collaborator. The feed
// is read-only to this service.
type BillClient struct {
	client  *http.Client
	baseURL string
}

func NewBillClient(baseURL string, timeout time.Duration) *BillClient {
	return &BillClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type billResponse struct {
	TotalDue    string    `json:"total_due"`
	MinimumDue  string    `json:"minimum_due"`
	DueDate     time.Time `json:"due_date"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (c *BillClient) GetBill(ctx context.Context, cardID uuid.UUID) (*domain.Bill, error) {
	url := fmt.Sprintf("%s/bills/%s", c.baseURL, cardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create bill request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bill feed call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bill feed returned status %s", resp.Status)
	}

	var br billResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decode bill response: %w", err)
	}

	totalDue, err := decimal.NewFromString(br.TotalDue)
	if err != nil {
		return nil, fmt.Errorf("parse total due %q: %w", br.TotalDue, err)
	}
	minimumDue, err := decimal.NewFromString(br.MinimumDue)
	if err != nil {
		return nil, fmt.Errorf("parse minimum due %q: %w", br.MinimumDue, err)
	}

	return &domain.Bill{
		CardID:      cardID,
		TotalDue:    totalDue,
		MinimumDue:  minimumDue,
		DueDate:     br.DueDate,
		PeriodStart: br.PeriodStart,
		PeriodEnd:   br.PeriodEnd,
	}, nil
}
