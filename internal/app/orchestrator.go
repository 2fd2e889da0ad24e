package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"billpay-processing-system/internal/core/domain"
	"billpay-processing-system/internal/core/ports"
	"billpay-processing-system/internal/idempotency"
	"billpay-processing-system/internal/observability"
	"billpay-processing-system/internal/rewards"
	"billpay-processing-system/internal/validation"
)

const (
	// GatewayTimeout bounds one charge call; cancellation frees the retry
	// budget for the next attempt.
	GatewayTimeout = 30 * time.Second

	// MaxGatewayAttempts is the total charge budget, first call included.
	MaxGatewayAttempts = 3
)

// Orchestrator coordinates a payment end to end:
// validate -> dedupe -> reserve -> charge -> settle -> reward.
// It implements the PaymentService port.
type Orchestrator struct {
	ledger   ports.PaymentLedger
	guard    *idempotency.Guard
	cards    ports.CardStore
	gateway  ports.Gateway
	bills    ports.BillProvider
	otp      ports.OTPVerifier
	rewards  *rewards.Engine
	notifier ports.Notifier
	logger   *slog.Logger

	now func() time.Time
}

func NewOrchestrator(
	ledger ports.PaymentLedger,
	guard *idempotency.Guard,
	cards ports.CardStore,
	gateway ports.Gateway,
	bills ports.BillProvider,
	otp ports.OTPVerifier,
	rewardEngine *rewards.Engine,
	notifier ports.Notifier,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		guard:    guard,
		cards:    cards,
		gateway:  gateway,
		bills:    bills,
		otp:      otp,
		rewards:  rewardEngine,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Pay runs the payment state machine:
// Submitted -> Validated -> Admitted -> GatewayCalled -> Settled.
// Every rejection before the ledger entry exists leaves no durable state.
func (o *Orchestrator) Pay(ctx context.Context, auth domain.AuthContext, req domain.PaymentRequest) (*domain.PaymentAttempt, error) {
	amount := req.Amount

	if req.Kind != domain.KindCustom {
		bill, err := o.bills.GetBill(ctx, req.CardID)
		if err != nil {
			return nil, fmt.Errorf("fetch bill: %w", err)
		}
		if req.Kind == domain.KindTotalDue {
			amount = bill.TotalDue
		} else {
			amount = bill.MinimumDue
		}
	}

	card, err := o.cards.Get(ctx, req.CardID)
	if err != nil {
		if errors.Is(err, domain.ErrCardNotFound) {
			return nil, domain.ErrCardNotEligible
		}
		return nil, fmt.Errorf("load card: %w", err)
	}

	todayTotal, err := o.ledger.SumActiveToday(ctx, auth.UserID)
	if err != nil {
		return nil, fmt.Errorf("daily limit snapshot: %w", err)
	}

	vr, err := validation.Validate(validation.Input{
		UserID:     auth.UserID,
		Card:       card,
		Amount:     amount,
		Kind:       req.Kind,
		TodayTotal: todayTotal,
	})
	if err != nil {
		return nil, err
	}

	now := o.now()
	key := idempotency.KeyFor(auth.UserID, req.CardID, amount, now)
	attemptID := uuid.New()
	if err := o.guard.Admit(ctx, key, attemptID, now); err != nil {
		return nil, err
	}

	if vr.OTPRequired {
		if err := o.otp.Verify(ctx, auth.UserID, amount); err != nil {
			o.release(ctx, key)
			return nil, fmt.Errorf("%w: %v", domain.ErrOTPRejected, err)
		}
	}

	attempt := &domain.PaymentAttempt{
		ID:             attemptID,
		IdempotencyKey: key,
		UserID:         auth.UserID,
		CardID:         req.CardID,
		Amount:         amount,
		Method:         req.Method,
		Kind:           req.Kind,
		Status:         domain.StatusPending,
		CreatedAt:      now,
	}
	if err := o.ledger.Create(ctx, attempt); err != nil {
		o.release(ctx, key)
		return nil, err
	}

	return o.settle(ctx, attempt, card)
}

// settle drives the gateway call with the fixed retry budget and applies
// the terminal outcome to the ledger.
func (o *Orchestrator) settle(ctx context.Context, attempt *domain.PaymentAttempt, card *domain.Card) (*domain.PaymentAttempt, error) {
	var result domain.ChargeResult

	for call := 1; ; call++ {
		chargeCtx, cancel := context.WithTimeout(ctx, GatewayTimeout)
		res, err := o.gateway.Charge(chargeCtx, attempt.ID, card.CardHash, attempt.Amount, attempt.Method)
		cancel()

		if err == nil && res.Outcome != domain.ChargeTransient {
			result = res
			break
		}

		// Timeouts and transport errors are transient: the gateway is
		// idempotent on the attempt id, so a retry cannot double-charge.
		if err != nil {
			o.logger.Warn("gateway call failed", "attempt_id", attempt.ID, "call", call, "error", err)
		} else {
			o.logger.Warn("gateway reported transient error", "attempt_id", attempt.ID, "call", call)
		}
		observability.GatewayRetriesTotal.Inc()

		if call >= MaxGatewayAttempts {
			if err := o.fail(ctx, attempt); err != nil {
				return nil, err
			}
			return nil, domain.ErrGatewayUnavailable
		}

		retries, rerr := o.ledger.IncrementRetry(ctx, attempt.ID)
		if rerr != nil {
			o.logger.Error("failed to persist retry count", "attempt_id", attempt.ID, "error", rerr)
		} else {
			attempt.RetryCount = retries
		}
	}

	if result.Outcome == domain.ChargeDeclined {
		// Declines are not transient: no retry.
		o.logger.Info("payment declined", "attempt_id", attempt.ID, "reason", result.DeclineReason)
		if err := o.fail(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, domain.ErrPaymentDeclined
	}

	if err := o.ledger.SetGatewayRef(ctx, attempt.ID, result.GatewayRef); err != nil {
		o.logger.Error("failed to persist gateway ref", "attempt_id", attempt.ID, "error", err)
	}
	if err := o.ledger.Transition(ctx, attempt.ID, domain.StatusSuccess); err != nil {
		// InvalidTransition here means the ledger no longer agrees with us;
		// abort instead of guessing.
		return nil, fmt.Errorf("settle attempt %s: %w", attempt.ID, err)
	}

	settled := o.now()
	attempt.Status = domain.StatusSuccess
	attempt.SettledAt = &settled
	attempt.GatewayRef = result.GatewayRef
	observability.PaymentsTotal.WithLabelValues("success").Inc()

	o.credit(ctx, attempt)

	if err := o.notifier.PaymentSettled(ctx, attempt); err != nil {
		o.logger.Warn("settled notification failed", "attempt_id", attempt.ID, "error", err)
	}
	return attempt, nil
}

// credit invokes the reward engine. The payment's success is authoritative:
// a crediting failure is logged and queued for reconciliation, never
// surfaced to the payer.
func (o *Orchestrator) credit(ctx context.Context, attempt *domain.PaymentAttempt) {
	rtx, err := o.rewards.Credit(ctx, attempt)
	if err != nil {
		o.logger.Error("reward credit failed, queueing for reconciliation",
			"attempt_id", attempt.ID, "error", err)
		observability.RewardReconciliationsTotal.Inc()
		if nerr := o.notifier.RewardReconcile(ctx, attempt); nerr != nil {
			o.logger.Error("failed to queue reward reconciliation",
				"attempt_id", attempt.ID, "error", nerr)
		}
		return
	}

	observability.RewardPointsTotal.Add(float64(rtx.TotalPoints))
	if err := o.notifier.RewardCredited(ctx, rtx); err != nil {
		o.logger.Warn("reward notification failed", "attempt_id", attempt.ID, "error", err)
	}
}

// fail transitions the attempt to FAILED and frees the idempotency key so
// an identical retry is admitted immediately.
func (o *Orchestrator) fail(ctx context.Context, attempt *domain.PaymentAttempt) error {
	if err := o.ledger.Transition(ctx, attempt.ID, domain.StatusFailed); err != nil {
		return fmt.Errorf("fail attempt %s: %w", attempt.ID, err)
	}
	attempt.Status = domain.StatusFailed
	observability.PaymentsTotal.WithLabelValues("failed").Inc()
	o.release(ctx, attempt.IdempotencyKey)

	if err := o.notifier.PaymentSettled(ctx, attempt); err != nil {
		o.logger.Warn("settled notification failed", "attempt_id", attempt.ID, "error", err)
	}
	return nil
}

func (o *Orchestrator) release(ctx context.Context, key string) {
	if err := o.guard.Release(ctx, key); err != nil {
		o.logger.Error("failed to release idempotency key", "error", err)
	}
}

// History is the read-only query surface consumed by history/export
// collaborators.
func (o *Orchestrator) History(ctx context.Context, userID uuid.UUID, f domain.LedgerFilter) ([]domain.PaymentAttempt, error) {
	return o.ledger.Query(ctx, userID, f)
}
