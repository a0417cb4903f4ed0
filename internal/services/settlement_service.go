package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/events"
	"github.com/staychain/backend/internal/models"
	"github.com/staychain/backend/internal/observability"
	"go.uber.org/zap"
)

// ReservationCreator is the external reservation-creation service.
type ReservationCreator interface {
	Create(ctx context.Context, req ReservationRequest) (string, error)
}

// Notifier informs the customer that the payment settled. Best effort.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, txHash string) error
}

type ReservationRequest struct {
	ReservationID string          `json:"reservation_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	HotelCode     string          `json:"hotel_code"`
	RateCode      string          `json:"rate_code"`
	RoomCode      string          `json:"room_code"`
	CheckIn       string          `json:"check_in"`  // YYYY-MM-DD
	CheckOut      string          `json:"check_out"` // YYYY-MM-DD
	Guests        []models.Guest  `json:"guests"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Token         string          `json:"token"`
	Blockchain    string          `json:"blockchain"`
	TxHash        string          `json:"tx_hash"`
	SenderAddress string          `json:"sender_address"`
}

type SettlementResult struct {
	PaymentID        uuid.UUID `json:"payment_id"`
	ReservationID    string    `json:"reservation_id,omitempty"`
	BookingRef       string    `json:"booking_ref,omitempty"`
	TxHash           string    `json:"tx_hash"`
	AlreadyProcessed bool      `json:"already_processed"`
	// RequiresReview flags a confirmed payment with no booking side to
	// attach it to: real money arrived and was recorded, but reservation
	// creation cannot proceed without manual reconciliation.
	RequiresReview bool `json:"requires_review"`
}

// SettlementService reconciles observed on-chain transfers against the two
// open record collections. The amount is the only correlation key the
// channel provides.
type SettlementService struct {
	payments     PaymentStore
	guests       GuestStore
	reservations ReservationCreator
	notifier     Notifier
	publisher    events.Publisher
	log          *zap.Logger
}

func NewSettlementService(
	payments PaymentStore,
	guests GuestStore,
	reservations ReservationCreator,
	notifier Notifier,
	publisher events.Publisher,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		payments:     payments,
		guests:       guests,
		reservations: reservations,
		notifier:     notifier,
		publisher:    publisher,
		log:          log,
	}
}

// OnTransferObserved processes one incoming transfer. Everything up to the
// CAS confirm is retryable: the producer redelivers and no state changed.
// Once either record is confirmed the transfer is committed; later failures
// are alert-only and never revert the confirmed payment state.
func (s *SettlementService) OnTransferObserved(
	ctx context.Context,
	token, blockchain string,
	amount decimal.Decimal,
	txHash, senderAddress string,
) (*SettlementResult, error) {
	observability.TransfersObserved.Inc()
	amount = amount.Round(2)

	// Redelivery of an already-settled transfer is a no-op.
	if prior, err := s.priorResult(ctx, txHash); err != nil {
		return nil, err
	} else if prior != nil {
		s.log.Info("transfer already settled, skipping",
			zap.String("tx_hash", txHash),
			zap.String("payment_id", prior.PaymentID.String()),
		)
		return prior, nil
	}

	payment, err := s.payments.FindPendingByAmount(ctx, token, blockchain, amount)
	if err != nil {
		if errors.Is(err, bookingerr.ErrNotFound) {
			observability.SettlementAnomalies.WithLabelValues("no_open_payment").Inc()
			s.log.Warn("transfer matches no open payment",
				zap.String("token", token),
				zap.String("blockchain", blockchain),
				zap.String("amount", amount.StringFixed(2)),
				zap.String("tx_hash", txHash),
				zap.String("sender", senderAddress),
			)
			return nil, fmt.Errorf("%w: no pending payment for %s %s %s",
				bookingerr.ErrNotFound, amount.StringFixed(2), token, blockchain)
		}
		return nil, fmt.Errorf("payment lookup: %w", err)
	}

	guest, err := s.guests.FindProcessingByAmount(ctx, amount)
	if err != nil {
		if !errors.Is(err, bookingerr.ErrNotFound) {
			return nil, fmt.Errorf("guest details lookup: %w", err)
		}
		// No open booking side. A record staged earlier and since swept
		// means the customer completed the flow and paid late: the payment
		// still confirms, flagged for review below. Never staged means the
		// transfer raced the staging step; nothing commits, so a redelivery
		// can settle both sides once staging lands.
		guest = nil
		if _, perr := s.guests.GetByPaymentID(ctx, payment.PaymentID); perr != nil {
			if !errors.Is(perr, bookingerr.ErrNotFound) {
				return nil, fmt.Errorf("guest details lookup: %w", perr)
			}
			observability.SettlementAnomalies.WithLabelValues("guest_not_staged").Inc()
			s.log.Warn("transfer arrived before guest details were staged",
				zap.String("payment_id", payment.PaymentID.String()),
				zap.String("amount", amount.StringFixed(2)),
				zap.String("tx_hash", txHash),
			)
			return nil, fmt.Errorf("%w: no staged guest details for payment %s",
				bookingerr.ErrNotFound, payment.PaymentID)
		}
	}

	// Commit point: the payment-side CAS. A loss here means the sweeper or a
	// concurrent delivery won the race.
	won, err := s.payments.ConfirmPending(ctx, payment.ID, txHash, senderAddress)
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	if !won {
		// A concurrent delivery of the same transfer confirmed first.
		if prior, perr := s.priorResult(ctx, txHash); perr == nil && prior != nil {
			return prior, nil
		}
		observability.SettlementAnomalies.WithLabelValues("payment_race_lost").Inc()
		return nil, fmt.Errorf("%w: payment %s no longer pending",
			bookingerr.ErrNotFound, payment.PaymentID)
	}

	result := &SettlementResult{PaymentID: payment.PaymentID, TxHash: txHash}

	if guest != nil {
		guestWon, err := s.guests.ConfirmProcessing(ctx, guest.ReservationID, txHash, senderAddress)
		if err != nil || !guestWon {
			// Payment already committed; the booking side slipped away
			// (swept between lookup and confirm). Money stays recorded.
			guest = nil
			if err != nil {
				s.log.Error("guest details confirm failed after payment commit", zap.Error(err))
			}
		}
	}

	if guest == nil {
		// Money received, no booking context to attach it to. The payment
		// stays confirmed — an on-chain transfer must never be un-recorded —
		// and the pair goes to manual reconciliation.
		result.RequiresReview = true
		observability.SettlementAnomalies.WithLabelValues("no_guest_details").Inc()
		s.log.Warn("payment confirmed without staged guest details",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("tx_hash", txHash),
		)
		_ = s.publisher.Publish(ctx, "events:settlement", events.Event{
			Type: events.EventSettlementReview,
			Payload: map[string]any{
				"payment_id": payment.PaymentID.String(),
				"amount":     amount.StringFixed(2),
				"tx_hash":    txHash,
			},
		})
		s.notify(ctx, payment, amount, txHash)
		return result, nil
	}

	result.ReservationID = guest.ReservationID
	observability.SettlementsConfirmed.Inc()
	s.log.Info("payment and booking confirmed",
		zap.String("payment_id", payment.PaymentID.String()),
		zap.String("reservation_id", guest.ReservationID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("tx_hash", txHash),
		zap.String("sender", senderAddress),
	)

	// Post-commit, alert-only from here on.
	ref, err := s.reservations.Create(ctx, ReservationRequest{
		ReservationID: guest.ReservationID,
		CustomerID:    guest.CustomerID,
		HotelCode:     guest.HotelCode,
		RateCode:      guest.RateCode,
		RoomCode:      guest.RoomCode,
		CheckIn:       guest.CheckIn.Format("2006-01-02"),
		CheckOut:      guest.CheckOut.Format("2006-01-02"),
		Guests:        guest.Guests,
		TotalAmount:   guest.TotalAmount,
		Token:         payment.Token,
		Blockchain:    payment.Blockchain,
		TxHash:        txHash,
		SenderAddress: senderAddress,
	})
	if err != nil {
		observability.PostCommitFailures.WithLabelValues("reservation_create").Inc()
		s.log.Error("reservation creation failed after settlement commit",
			zap.String("reservation_id", guest.ReservationID),
			zap.Error(err),
		)
	} else {
		result.BookingRef = ref
		s.notify(ctx, payment, amount, txHash)
	}

	_ = s.publisher.Publish(ctx, "events:settlement", events.Event{
		Type: events.EventBookingConfirmed,
		Payload: map[string]any{
			"payment_id":     payment.PaymentID.String(),
			"reservation_id": guest.ReservationID,
			"amount":         amount.StringFixed(2),
			"tx_hash":        txHash,
		},
	})

	return result, nil
}

// priorResult rebuilds the settlement outcome for a transfer that already
// confirmed a payment, so redeliveries return the same answer.
func (s *SettlementService) priorResult(ctx context.Context, txHash string) (*SettlementResult, error) {
	payment, err := s.payments.GetConfirmedByTxHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, bookingerr.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	result := &SettlementResult{
		PaymentID:        payment.PaymentID,
		TxHash:           txHash,
		AlreadyProcessed: true,
	}
	guest, err := s.guests.GetConfirmedByTxHash(ctx, txHash)
	switch {
	case err == nil:
		result.ReservationID = guest.ReservationID
	case errors.Is(err, bookingerr.ErrNotFound):
		result.RequiresReview = true
	default:
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return result, nil
}

func (s *SettlementService) notify(ctx context.Context, payment *models.PaymentRecord, amount decimal.Decimal, txHash string) {
	if err := s.notifier.PaymentConfirmed(ctx, payment.CustomerID, amount, txHash); err != nil {
		observability.PostCommitFailures.WithLabelValues("notify").Inc()
		s.log.Warn("payment confirmation notification failed",
			zap.String("payment_id", payment.PaymentID.String()),
			zap.Error(err),
		)
	}
	_ = s.publisher.Publish(ctx, "events:settlement", events.Event{
		Type: events.EventPaymentConfirmed,
		Payload: map[string]any{
			"payment_id":  payment.PaymentID.String(),
			"customer_id": payment.CustomerID.String(),
			"amount":      amount.StringFixed(2),
			"tx_hash":     txHash,
		},
	})
}
