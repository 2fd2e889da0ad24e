package mock

import (
	"context"
	"fmt"

	"billpay-processing-system/internal/core/domain"
)

// Broker is a stdout stub for the Notifier port, used for local runs
// without a Kafka cluster.
type Broker struct{}

func NewBroker() *Broker {
	return &Broker{}
}

func (b *Broker) Close() error {
	return nil
}

func (b *Broker) PaymentSettled(_ context.Context, attempt *domain.PaymentAttempt) error {
	fmt.Printf("📨 [MOCK] Payment settled: %s, amount ₹%s, status %s\n",
		attempt.ID, attempt.Amount.StringFixed(2), attempt.Status)
	return nil
}

func (b *Broker) RewardCredited(_ context.Context, rtx *domain.RewardTransaction) error {
	fmt.Printf("📨 [MOCK] Reward credited: attempt %s, %d points, balance %d\n",
		rtx.AttemptID, rtx.TotalPoints, rtx.BalanceAfter)
	return nil
}

func (b *Broker) RewardReconcile(_ context.Context, attempt *domain.PaymentAttempt) error {
	fmt.Printf("📨 [MOCK] Reward queued for reconciliation: attempt %s\n", attempt.ID)
	return nil
}
