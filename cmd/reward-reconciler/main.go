package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kgo"

	"billpay-processing-system/internal/adapters/gateway"
	"billpay-processing-system/internal/adapters/messaging/kafka"
	"billpay-processing-system/internal/adapters/storage/postgres"
	"billpay-processing-system/internal/config"
	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/observability"
	"billpay-processing-system/internal/rewards"
)

// maxCreditAttempts bounds how often a single payment is retried before it
// lands in the DLQ for manual inspection.
const maxCreditAttempts = 5

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("reward reconciler starting", "env", cfg.App.Env)

	kafkaBrokers := strings.Split(cfg.Kafka.BootstrapServers, ",")

	// Producer for requeues and the DLQ.
	producer, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		logger.Error("failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	// ClickHouse holds the reconciliation audit trail.
	chConn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		},
	})
	if err != nil {
		logger.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := chConn.Close(); err != nil {
			logger.Error("Failed to close ClickHouse connection", "error", err)
		}
	}()

	// Redis counts credit attempts per payment so poison messages cannot
	// loop forever.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("Failed to close redis connection", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := postgres.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	collabTimeout := time.Duration(cfg.Collaborators.TimeoutSeconds) * time.Second
	billClient := gateway.NewBillClient(cfg.Collaborators.BillsURL, collabTimeout)
	engine := rewards.NewEngine(repo, billClient, logger)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Kafka.ReconcileTopic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	logger.Info("reward reconciler running", "topic", cfg.Kafka.ReconcileTopic, "group", cfg.Kafka.ConsumerGroup)

	r := &reconciler{
		engine:         engine,
		producer:       producer,
		rdb:            rdb,
		ch:             chConn,
		logger:         logger,
		reconcileTopic: cfg.Kafka.ReconcileTopic,
		dlqTopic:       cfg.Kafka.DLQTopic,
	}

	run := true
	for run {
		select {
		case <-ctx.Done():
			run = false
		default:
			fetches := consumer.PollFetches(ctx)
			if fetches.IsClientClosed() || ctx.Err() != nil {
				break
			}

			fetches.EachError(func(t string, p int32, err error) {
				logger.Error("kafka fetch error", "topic", t, "partition", p, "error", err)
			})
			fetches.EachRecord(func(record *kgo.Record) {
				r.handle(ctx, record)
			})

			if err := consumer.CommitUncommittedOffsets(ctx); err != nil {
				logger.Error("error committing offsets", "error", err)
			}
		}
	}

	logger.Info("reward reconciler stopping...")
}

type reconciler struct {
	engine         *rewards.Engine
	producer       *kgo.Client
	rdb            *redis.Client
	ch             clickhouse.Conn
	logger         *slog.Logger
	reconcileTopic string
	dlqTopic       string
}

func (r *reconciler) handle(ctx context.Context, record *kgo.Record) {
	var msg kafka.AttemptMessage
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		r.logger.Error("malformed reconcile message, sending to DLQ", "error", err)
		r.sendToDLQ(record, "unmarshal_error", err.Error())
		return
	}

	attempt, err := attemptFromMessage(msg)
	if err != nil {
		r.logger.Error("invalid reconcile message, sending to DLQ", "error", err, "attempt_id", msg.AttemptID)
		r.sendToDLQ(record, "invalid_message", err.Error())
		return
	}

	tries, err := r.rdb.Incr(ctx, "reconcile:attempts:"+msg.AttemptID).Result()
	if err != nil {
		// Proceed without the guard rather than stall the whole partition.
		r.logger.Warn("attempt counter unavailable", "error", err)
	} else if tries > maxCreditAttempts {
		r.logger.Error("credit attempts exhausted, sending to DLQ", "attempt_id", msg.AttemptID, "tries", tries)
		r.sendToDLQ(record, "max_attempts_exceeded", fmt.Sprintf("%d attempts", tries))
		r.audit(ctx, attempt, 0, "dead_lettered")
		return
	}

	rtx, err := r.engine.Credit(ctx, attempt)
	if err != nil {
		r.logger.Warn("credit failed, requeueing", "attempt_id", msg.AttemptID, "error", err)
		r.requeue(record)
		r.audit(ctx, attempt, 0, "requeued")
		return
	}

	r.audit(ctx, attempt, rtx.TotalPoints, "credited")
	r.logger.Info("reward reconciled", "attempt_id", msg.AttemptID, "points", rtx.TotalPoints)
}

func attemptFromMessage(msg kafka.AttemptMessage) (*domain.PaymentAttempt, error) {
	id, err := uuid.Parse(msg.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("bad attempt id: %w", err)
	}
	userID, err := uuid.Parse(msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("bad user id: %w", err)
	}
	cardID, err := uuid.Parse(msg.CardID)
	if err != nil {
		return nil, fmt.Errorf("bad card id: %w", err)
	}
	amount, err := decimal.NewFromString(msg.Amount)
	if err != nil {
		return nil, fmt.Errorf("bad amount: %w", err)
	}
	return &domain.PaymentAttempt{
		ID:         id,
		UserID:     userID,
		CardID:     cardID,
		Amount:     amount,
		Method:     domain.PaymentMethod(msg.Method),
		Kind:       domain.PaymentKind(msg.Kind),
		Status:     domain.PaymentStatus(msg.Status),
		GatewayRef: msg.GatewayRef,
		CreatedAt:  msg.CreatedAt,
		SettledAt:  msg.SettledAt,
	}, nil
}

func (r *reconciler) audit(ctx context.Context, attempt *domain.PaymentAttempt, points int64, outcome string) {
	err := r.ch.Exec(ctx, `
	INSERT INTO reward_reconciliations (attempt_id, user_id, amount, points, outcome, processed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		attempt.ID.String(),
		attempt.UserID.String(),
		attempt.Amount.StringFixed(2),
		points,
		outcome,
		time.Now(),
	)
	if err != nil {
		r.logger.Error("failed to insert into ClickHouse", "error", err, "attempt_id", attempt.ID)
	}
}

func (r *reconciler) requeue(originalRecord *kgo.Record) {
	record := &kgo.Record{
		Topic: r.reconcileTopic,
		Key:   originalRecord.Key,
		Value: originalRecord.Value,
	}
	r.producer.Produce(context.Background(), record, func(rec *kgo.Record, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to requeue reconcile message: %v\n", err)
		}
	})
}

// sendToDLQ forwards the original message to the dead-letter topic with
// failure metadata in the headers.
func (r *reconciler) sendToDLQ(originalRecord *kgo.Record, errorType, errorString string) {
	dlqRecord := &kgo.Record{
		Topic: r.dlqTopic,
		Value: originalRecord.Value,
		Key:   originalRecord.Key,
		Headers: []kgo.RecordHeader{
			{Key: "error_type", Value: []byte(errorType)},
			{Key: "error_string", Value: []byte(errorString)},
			{Key: "original_topic", Value: []byte(originalRecord.Topic)},
		},
	}
	r.producer.Produce(context.Background(), dlqRecord, func(rec *kgo.Record, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to send message to DLQ: %v\n", err)
		}
	})
}
