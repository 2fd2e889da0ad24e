package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"billpay-processing-system/internal/core/domain"
)

// Broker is the Kafka implementation of the Notifier port. Settled payments
// and reward credits fan out to the notification collaborators; failed
// reward credits go to the reconciliation topic for the reconciler to pick
// up.
type Broker struct {
	client         *kgo.Client
	settledTopic   string
	rewardTopic    string
	reconcileTopic string
	logger         *slog.Logger
	wg             sync.WaitGroup
}

// NewBroker creates a new Kafka broker instance and checks connectivity.
func NewBroker(bootstrapServers []string, settledTopic, rewardTopic, reconcileTopic string, logger *slog.Logger) (*Broker, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(bootstrapServers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(10 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	if err := client.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}

	return &Broker{
		client:         client,
		settledTopic:   settledTopic,
		rewardTopic:    rewardTopic,
		reconcileTopic: reconcileTopic,
		logger:         logger,
	}, nil
}

// AttemptMessage is the wire shape shared by the settled and reconciliation
// topics; the reconciler decodes it back into a credit call.
type AttemptMessage struct {
	AttemptID  string     `json:"attempt_id"`
	UserID     string     `json:"user_id"`
	CardID     string     `json:"card_id"`
	Amount     string     `json:"amount"`
	Method     string     `json:"method"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	GatewayRef string     `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

func attemptMessage(a *domain.PaymentAttempt) AttemptMessage {
	return AttemptMessage{
		AttemptID:  a.ID.String(),
		UserID:     a.UserID.String(),
		CardID:     a.CardID.String(),
		Amount:     a.Amount.StringFixed(2),
		Method:     string(a.Method),
		Kind:       string(a.Kind),
		Status:     string(a.Status),
		GatewayRef: a.GatewayRef,
		CreatedAt:  a.CreatedAt,
		SettledAt:  a.SettledAt,
	}
}

func (b *Broker) PaymentSettled(ctx context.Context, attempt *domain.PaymentAttempt) error {
	return b.produce(ctx, b.settledTopic, attempt.ID.String(), attemptMessage(attempt))
}

func (b *Broker) RewardCredited(ctx context.Context, rtx *domain.RewardTransaction) error {
	return b.produce(ctx, b.rewardTopic, rtx.AttemptID.String(), map[string]any{
		"reward_id":     rtx.ID.String(),
		"attempt_id":    rtx.AttemptID.String(),
		"user_id":       rtx.UserID.String(),
		"total_points":  rtx.TotalPoints,
		"balance_after": rtx.BalanceAfter,
		"created_at":    rtx.CreatedAt.Format(time.RFC3339),
	})
}

func (b *Broker) RewardReconcile(ctx context.Context, attempt *domain.PaymentAttempt) error {
	return b.produce(ctx, b.reconcileTopic, attempt.ID.String(), attemptMessage(attempt))
}

func (b *Broker) produce(ctx context.Context, topic, key string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	b.wg.Add(1)
	// Produce sends the record asynchronously; delivery is fire-and-forget
	// by the Notifier contract, so callbacks only log.
	b.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer b.wg.Done()
		if err != nil {
			b.logger.Error("failed to deliver message to kafka", "topic", r.Topic, "error", err)
		} else {
			b.logger.Debug("message delivered to kafka", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
		}
	})

	return nil
}

// Close waits for in-flight deliveries and stops the producer.
func (b *Broker) Close() {
	b.logger.Info("waiting for kafka deliveries to finish...")
	b.wg.Wait()
	b.client.Close()
	b.logger.Info("kafka client stopped")
}
