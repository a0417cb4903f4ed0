package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/models"
	"go.uber.org/zap"
)

// PaymentService owns the pending lifecycle of both record types: payment
// initiation (the money side) and guest-details staging (the booking side).
type PaymentService struct {
	payments  PaymentStore
	guests    GuestStore
	customers CustomerStore
	converter *CurrencyService
	allocator *AmountAllocator
	log       *zap.Logger
}

func NewPaymentService(
	payments PaymentStore,
	guests GuestStore,
	customers CustomerStore,
	converter *CurrencyService,
	allocator *AmountAllocator,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		payments:  payments,
		guests:    guests,
		customers: customers,
		converter: converter,
		allocator: allocator,
		log:       log,
	}
}

// Quote normalizes a customer-facing price into the settlement currency.
// The result travels back to the client and must be echoed on initiation.
func (s *PaymentService) Quote(currencyCode string, amount decimal.Decimal) (Conversion, error) {
	return s.converter.Convert(currencyCode, amount)
}

// InitiatePayment allocates a collision-free amount and persists a pending
// payment record. quotedAmount is the conversion the client carried forward;
// it is re-derived server-side and any divergence (a stale or tampered
// quote) is rejected before an amount is reserved.
func (s *PaymentService) InitiatePayment(
	ctx context.Context,
	customerID uuid.UUID,
	token, blockchain, currencyCode string,
	baseAmount, quotedAmount decimal.Decimal,
) (*models.PaymentRecord, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	blockchain = strings.ToUpper(strings.TrimSpace(blockchain))
	if token == "" || blockchain == "" {
		return nil, fmt.Errorf("%w: token and blockchain are required", bookingerr.ErrValidation)
	}

	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, bookingerr.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %s", bookingerr.ErrNotFound, customerID)
		}
		return nil, fmt.Errorf("customer lookup: %w", err)
	}

	conv, err := s.converter.Convert(currencyCode, baseAmount)
	if err != nil {
		return nil, err
	}
	if !conv.ConvertedAmount.Equal(quotedAmount) {
		return nil, fmt.Errorf("%w: quoted %s, current %s",
			bookingerr.ErrAmountMismatch, quotedAmount.StringFixed(2), conv.ConvertedAmount.StringFixed(2))
	}

	payment := &models.PaymentRecord{
		CustomerID: customerID,
		Token:      token,
		Blockchain: blockchain,
		PaymentID:  uuid.New(),
		Status:     models.PaymentStatusPending,
	}

	if err := s.allocator.Allocate(ctx, payment, conv.ConvertedAmount); err != nil {
		return nil, err
	}

	s.log.Info("payment initiated",
		zap.String("payment_id", payment.PaymentID.String()),
		zap.String("customer_id", customerID.String()),
		zap.String("token", token),
		zap.String("blockchain", blockchain),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	return payment, nil
}

type GuestInput struct {
	Name        string
	DateOfBirth time.Time
}

type StageGuestDetailsInput struct {
	PaymentID   uuid.UUID
	HotelCode   string
	RateCode    string
	RoomCode    string
	CheckIn     time.Time
	CheckOut    time.Time
	Guests      []GuestInput
	TotalAmount decimal.Decimal
}

// StageGuestDetails persists the booking side of a pending payment. The
// client echoes the payment id it received at initiation so the amount join
// stays auditable; the total amount must still equal the allocated amount
// exactly, because amount equality is what settlement will match on.
func (s *PaymentService) StageGuestDetails(ctx context.Context, customerID uuid.UUID, in StageGuestDetailsInput) (*models.GuestDetailsRecord, error) {
	payment, err := s.payments.GetByPaymentID(ctx, in.PaymentID)
	if err != nil {
		if errors.Is(err, bookingerr.ErrNotFound) {
			return nil, fmt.Errorf("%w: payment %s", bookingerr.ErrNotFound, in.PaymentID)
		}
		return nil, fmt.Errorf("payment lookup: %w", err)
	}
	if payment.CustomerID != customerID {
		return nil, fmt.Errorf("%w: payment %s", bookingerr.ErrNotFound, in.PaymentID)
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment %s is %s", bookingerr.ErrNotFound, in.PaymentID, payment.Status)
	}

	if !in.TotalAmount.Equal(payment.Amount) {
		return nil, fmt.Errorf("%w: staged %s, allocated %s",
			bookingerr.ErrAmountMismatch, in.TotalAmount.StringFixed(2), payment.Amount.StringFixed(2))
	}

	if err := validateStageInput(in); err != nil {
		return nil, err
	}

	record := &models.GuestDetailsRecord{
		ReservationID: newReservationID(),
		PaymentID:     payment.PaymentID,
		CustomerID:    customerID,
		HotelCode:     strings.TrimSpace(in.HotelCode),
		RateCode:      strings.TrimSpace(in.RateCode),
		RoomCode:      strings.TrimSpace(in.RoomCode),
		CheckIn:       in.CheckIn,
		CheckOut:      in.CheckOut,
		TotalAmount:   payment.Amount,
		Status:        models.GuestDetailsStatusProcessing,
	}
	for _, g := range in.Guests {
		record.Guests = append(record.Guests, models.Guest{
			Name:        strings.TrimSpace(g.Name),
			DateOfBirth: g.DateOfBirth,
			Category:    models.GuestCategoryAt(g.DateOfBirth, in.CheckIn),
		})
	}
	record.CountCategories()

	if err := s.guests.InsertProcessing(ctx, record); err != nil {
		return nil, fmt.Errorf("persist guest details: %w", err)
	}

	s.log.Info("guest details staged",
		zap.String("reservation_id", record.ReservationID),
		zap.String("payment_id", payment.PaymentID.String()),
		zap.String("hotel_code", record.HotelCode),
		zap.String("total_amount", record.TotalAmount.StringFixed(2)),
		zap.Int("adults", record.Adults),
		zap.Int("children", record.Children),
		zap.Int("infants", record.Infants),
	)
	return record, nil
}

// GetPayment returns a customer's own payment for status polling.
func (s *PaymentService) GetPayment(ctx context.Context, customerID, paymentID uuid.UUID) (*models.PaymentRecord, error) {
	payment, err := s.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.CustomerID != customerID {
		return nil, fmt.Errorf("%w: payment %s", bookingerr.ErrNotFound, paymentID)
	}
	return payment, nil
}

// GetBooking returns a customer's own staged booking for status polling.
func (s *PaymentService) GetBooking(ctx context.Context, customerID uuid.UUID, reservationID string) (*models.GuestDetailsRecord, error) {
	record, err := s.guests.GetByReservationID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if record.CustomerID != customerID {
		return nil, fmt.Errorf("%w: reservation %s", bookingerr.ErrNotFound, reservationID)
	}
	return record, nil
}

func validateStageInput(in StageGuestDetailsInput) error {
	if strings.TrimSpace(in.HotelCode) == "" || strings.TrimSpace(in.RateCode) == "" || strings.TrimSpace(in.RoomCode) == "" {
		return fmt.Errorf("%w: hotel, rate and room codes are required", bookingerr.ErrValidation)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	checkIn := in.CheckIn.UTC().Truncate(24 * time.Hour)
	checkOut := in.CheckOut.UTC().Truncate(24 * time.Hour)
	if checkIn.Before(today) {
		return fmt.Errorf("%w: check-in is in the past", bookingerr.ErrValidation)
	}
	if !checkOut.After(checkIn) {
		return fmt.Errorf("%w: check-out must be after check-in", bookingerr.ErrValidation)
	}

	if len(in.Guests) == 0 {
		return fmt.Errorf("%w: guest list is empty", bookingerr.ErrValidation)
	}
	now := time.Now().UTC()
	for i, g := range in.Guests {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("%w: guest %d has no name", bookingerr.ErrValidation, i+1)
		}
		if g.DateOfBirth.IsZero() || g.DateOfBirth.After(now) {
			return fmt.Errorf("%w: guest %d has an invalid date of birth", bookingerr.ErrValidation, i+1)
		}
	}
	return nil
}

func newReservationID() string {
	short := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:12]
	return "HB-" + short
}
