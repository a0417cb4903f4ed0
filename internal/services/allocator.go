package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/models"
	"github.com/staychain/backend/internal/observability"
	"go.uber.org/zap"
)

var centStep = decimal.New(1, -2)

// AmountAllocator hands out a collision-free amount variant of a base price.
// The settlement channel exposes nothing but the amount, so the amount itself
// must disambiguate concurrent payers: each candidate adds one more cent to
// the base, and the step limit caps the added noise at one settlement unit.
//
// Allocation and persistence are a single step: each candidate is claimed by
// attempting the pending insert, and the partial unique index decides the
// winner. There is no read-then-insert gap to race through.
type AmountAllocator struct {
	payments PaymentStore
	maxSteps int
	log      *zap.Logger
}

func NewAmountAllocator(payments PaymentStore, maxSteps int, log *zap.Logger) *AmountAllocator {
	if maxSteps <= 0 {
		maxSteps = 100
	}
	return &AmountAllocator{payments: payments, maxSteps: maxSteps, log: log}
}

// Allocate fills p.Amount with the first free variant of the given base and
// persists p as pending. On success p carries the stored row. Exhausting
// every candidate returns bookingerr.ErrAmountsExhausted.
func (a *AmountAllocator) Allocate(ctx context.Context, p *models.PaymentRecord, base decimal.Decimal) error {
	base = base.Round(2)

	for i := 0; i < a.maxSteps; i++ {
		candidate := base.Add(centStep.Mul(decimal.NewFromInt(int64(i)))).Round(2)

		p.Amount = candidate
		err := a.payments.InsertPending(ctx, p)
		if err == nil {
			if i > 0 {
				a.log.Debug("amount variant allocated",
					zap.String("base", base.StringFixed(2)),
					zap.String("amount", candidate.StringFixed(2)),
					zap.Int("step", i),
				)
			}
			return nil
		}
		if errors.Is(err, bookingerr.ErrAmountTaken) {
			continue
		}
		return fmt.Errorf("persist pending payment: %w", err)
	}

	observability.AllocationExhausted.Inc()
	a.log.Warn("amount allocation exhausted",
		zap.String("base", base.StringFixed(2)),
		zap.Int("steps", a.maxSteps),
	)
	return fmt.Errorf("%w: base %s", bookingerr.ErrAmountsExhausted, base.StringFixed(2))
}
