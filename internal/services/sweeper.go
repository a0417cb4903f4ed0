package services

import (
	"context"
	"time"

	"github.com/staychain/backend/internal/events"
	"github.com/staychain/backend/internal/models"
	"github.com/staychain/backend/internal/observability"
	"go.uber.org/zap"
)

// ExpirySweeper cancels stale open records past the collision-window
// horizon. It is the only cancelling actor in the system. Payments and guest
// records are swept independently — the amount-based correlation model has
// no join to cascade through — and both sweeps are status-filtered updates,
// so a record the matcher confirms first is out of reach.
type ExpirySweeper struct {
	payments  PaymentStore
	guests    GuestStore
	publisher events.Publisher
	window    time.Duration
	log       *zap.Logger
}

func NewExpirySweeper(payments PaymentStore, guests GuestStore, publisher events.Publisher, window time.Duration, log *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		payments:  payments,
		guests:    guests,
		publisher: publisher,
		window:    window,
		log:       log,
	}
}

// RunOnce performs a single sweep tick. The horizon is evaluated against
// createdAt at tick time; there are no per-record timers.
func (s *ExpirySweeper) RunOnce(ctx context.Context) {
	horizon := time.Now().UTC().Add(-s.window)

	expiredPayments, err := s.payments.CancelExpired(ctx, horizon)
	if err != nil {
		s.log.Error("payment sweep failed", zap.Error(err))
	} else if expiredPayments > 0 {
		observability.RecordsExpired.WithLabelValues("payment").Add(float64(expiredPayments))
	}

	expiredGuests, err := s.guests.CancelExpired(ctx, horizon)
	if err != nil {
		s.log.Error("guest details sweep failed", zap.Error(err))
	} else if expiredGuests > 0 {
		observability.RecordsExpired.WithLabelValues("guest_details").Add(float64(expiredGuests))
	}

	if expiredPayments > 0 || expiredGuests > 0 {
		s.log.Info("stale records cancelled",
			zap.Int64("payments", expiredPayments),
			zap.Int64("guest_details", expiredGuests),
			zap.Time("horizon", horizon),
		)
		_ = s.publisher.Publish(ctx, "events:settlement", events.Event{
			Type: events.EventRecordsExpired,
			Payload: map[string]any{
				"payments":      expiredPayments,
				"guest_details": expiredGuests,
				"horizon":       horizon.Format(time.RFC3339),
			},
		})
	}
}

// Start runs sweep ticks on the given interval until ctx is cancelled.
func (s *ExpirySweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started",
		zap.Duration("interval", interval),
		zap.Duration("window", s.window),
		zap.Strings("cancels", []string{models.PaymentStatusPending, models.GuestDetailsStatusProcessing}),
	)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		}
	}
}
