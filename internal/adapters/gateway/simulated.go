package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billpay-processing-system/internal/core/domain"
)

// Simulated is an in-process gateway for local runs. It is idempotent the
// way a real rail is: the first charge for an attempt id decides the
// outcome and every repeat returns the recorded result without moving funds
// again.
type Simulated struct {
	mu      sync.Mutex
	charged map[uuid.UUID]domain.ChargeResult
	seq     int

	// Script, when non-empty, is consumed one outcome per *new* attempt id.
	// Used to exercise decline and transient paths.
	Script []domain.ChargeOutcome
}

func NewSimulated() *Simulated {
	return &Simulated{charged: make(map[uuid.UUID]domain.ChargeResult)}
}

func (s *Simulated) Charge(_ context.Context, attemptID uuid.UUID, _ string, _ decimal.Decimal, _ domain.PaymentMethod) (domain.ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.charged[attemptID]; ok {
		return res, nil
	}

	outcome := domain.ChargeSuccess
	if len(s.Script) > 0 {
		outcome = s.Script[0]
		s.Script = s.Script[1:]
	}

	var res domain.ChargeResult
	switch outcome {
	case domain.ChargeDeclined:
		res = domain.ChargeResult{Outcome: domain.ChargeDeclined, DeclineReason: "do not honour"}
	case domain.ChargeTransient:
		// Transient outcomes are not terminal: do not record them, the
		// retry should get a fresh decision.
		return domain.ChargeResult{Outcome: domain.ChargeTransient}, nil
	default:
		s.seq++
		res = domain.ChargeResult{Outcome: domain.ChargeSuccess, GatewayRef: fmt.Sprintf("SIM-%06d", s.seq)}
	}

	s.charged[attemptID] = res
	return res, nil
}

// ChargeCount reports how many distinct fund movements happened; used by
// tests asserting the at-most-once property.
func (s *Simulated) ChargeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, res := range s.charged {
		if res.Outcome == domain.ChargeSuccess {
			n++
		}
	}
	return n
}
