package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is our own type for attempt states to avoid "magic strings".
// PENDING is the only non-terminal state; SUCCESS and FAILED are terminal.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

// Terminal reports whether no further transition is permitted from s.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PaymentMethod is the rail the charge is routed through. The gateway is
// opaque beyond its charge contract, so the method is carried as-is.
type PaymentMethod string

const (
	MethodUPI        PaymentMethod = "UPI"
	MethodNetBanking PaymentMethod = "NET_BANKING"
	MethodCard       PaymentMethod = "CARD"
	MethodWallet     PaymentMethod = "WALLET"
)

// PaymentKind distinguishes a user-entered amount from bill-derived ones.
// Bill-derived kinds bypass the minimum-amount check by construction.
type PaymentKind string

const (
	KindCustom     PaymentKind = "CUSTOM"
	KindTotalDue   PaymentKind = "TOTAL_DUE"
	KindMinimumDue PaymentKind = "MINIMUM_DUE"
)

// PaymentAttempt is the central entity of our domain: one submitted bill
// payment and its lifecycle. Amount is immutable after creation; Status is
// the only field that transitions, and only away from PENDING.
type PaymentAttempt struct {
	ID             uuid.UUID
	IdempotencyKey string
	UserID         uuid.UUID
	CardID         uuid.UUID
	Amount         decimal.Decimal
	Method         PaymentMethod
	Kind           PaymentKind
	Status         PaymentStatus
	GatewayRef     string
	RetryCount     int
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// AuthContext carries the already-authenticated caller identity. Session and
// device binding live in the auth collaborator; the core never reads ambient
// session state.
type AuthContext struct {
	UserID   uuid.UUID
	DeviceID string
}

// PaymentRequest is an incoming payment submission before validation.
// Amount is ignored for bill-derived kinds; the orchestrator resolves it
// from the statement.
type PaymentRequest struct {
	CardID uuid.UUID
	Amount decimal.Decimal
	Method PaymentMethod
	Kind   PaymentKind
}

// LedgerFilter narrows a history query. Zero values mean "no constraint".
type LedgerFilter struct {
	CardID *uuid.UUID
	Status *PaymentStatus
	From   time.Time
	To     time.Time
	Limit  int
}

// ChargeOutcome is the gateway's terminal answer for one charge call.
type ChargeOutcome string

const (
	ChargeSuccess   ChargeOutcome = "SUCCESS"
	ChargeDeclined  ChargeOutcome = "DECLINED"
	ChargeTransient ChargeOutcome = "TRANSIENT"
)

// ChargeResult is what the payment rail returns. GatewayRef is set only on
// success; DeclineReason only on an explicit decline.
type ChargeResult struct {
	Outcome       ChargeOutcome
	GatewayRef    string
	DeclineReason string
}
