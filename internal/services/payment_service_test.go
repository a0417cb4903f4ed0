package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPaymentService() (*PaymentService, *fakePaymentStore, *fakeGuestStore, uuid.UUID) {
	payments := &fakePaymentStore{}
	guests := &fakeGuestStore{}
	customerID := uuid.New()
	customers := &fakeCustomerStore{customers: map[uuid.UUID]*models.Customer{
		customerID: {ID: customerID, Email: "guest@example.com"},
	}}
	svc := NewPaymentService(
		payments, guests, customers,
		newTestConverter(),
		NewAmountAllocator(payments, 100, zap.NewNop()),
		zap.NewNop(),
	)
	return svc, payments, guests, customerID
}

func TestInitiatePayment(t *testing.T) {
	svc, store, _, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"usdt", "ton", "EUR",
		decimal.RequireFromString("100.00"), decimal.RequireFromString("108.00"))
	require.NoError(t, err)

	assert.Equal(t, "USDT", p.Token)
	assert.Equal(t, "TON", p.Blockchain)
	assert.Equal(t, "108.00", p.Amount.StringFixed(2))
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.NotEqual(t, uuid.Nil, p.PaymentID)

	stored := store.get(p.PaymentID)
	require.NotNil(t, stored)
	assert.Equal(t, customerID, stored.CustomerID)
}

func TestInitiatePaymentRejectsStaleQuote(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	// Client echoes a quote made under a different rate.
	_, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "EUR",
		decimal.RequireFromString("100.00"), decimal.RequireFromString("107.00"))
	assert.True(t, errors.Is(err, bookingerr.ErrAmountMismatch))
}

func TestInitiatePaymentUnknownCustomer(t *testing.T) {
	svc, _, _, _ := newTestPaymentService()

	_, err := svc.InitiatePayment(context.Background(), uuid.New(),
		"USDT", "TON", "USDT",
		decimal.RequireFromString("50.00"), decimal.RequireFromString("50.00"))
	assert.True(t, errors.Is(err, bookingerr.ErrNotFound))
}

func TestInitiatePaymentRequiresChannel(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	_, err := svc.InitiatePayment(context.Background(), customerID,
		"", "TON", "USDT",
		decimal.RequireFromString("50.00"), decimal.RequireFromString("50.00"))
	assert.True(t, errors.Is(err, bookingerr.ErrValidation))
}

func validStageInput(paymentID uuid.UUID, amount decimal.Decimal) StageGuestDetailsInput {
	checkIn := time.Now().UTC().AddDate(0, 1, 0)
	return StageGuestDetailsInput{
		PaymentID: paymentID,
		HotelCode: "HTL-001",
		RateCode:  "BAR",
		RoomCode:  "DBL",
		CheckIn:   checkIn,
		CheckOut:  checkIn.AddDate(0, 0, 3),
		Guests: []GuestInput{
			{Name: "Alice Example", DateOfBirth: checkIn.AddDate(-30, 0, 0)},
			{Name: "Bobby Example", DateOfBirth: checkIn.AddDate(-8, 0, 0)},
			{Name: "Carol Example", DateOfBirth: checkIn.AddDate(-1, 0, 0)},
		},
		TotalAmount: amount,
	}
}

func TestStageGuestDetails(t *testing.T) {
	svc, _, guests, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "USDT",
		decimal.RequireFromString("250.00"), decimal.RequireFromString("250.00"))
	require.NoError(t, err)

	record, err := svc.StageGuestDetails(context.Background(), customerID, validStageInput(p.PaymentID, p.Amount))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(record.ReservationID, "HB-"))
	assert.Equal(t, p.PaymentID, record.PaymentID)
	assert.Equal(t, models.GuestDetailsStatusProcessing, record.Status)
	assert.True(t, record.TotalAmount.Equal(p.Amount))
	assert.Equal(t, 1, record.Adults)
	assert.Equal(t, 1, record.Children)
	assert.Equal(t, 1, record.Infants)

	stored := guests.get(record.ReservationID)
	require.NotNil(t, stored)
	assert.Len(t, stored.Guests, 3)
}

func TestStageGuestDetailsAmountMismatch(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "USDT",
		decimal.RequireFromString("250.00"), decimal.RequireFromString("250.00"))
	require.NoError(t, err)

	in := validStageInput(p.PaymentID, p.Amount.Add(decimal.RequireFromString("0.01")))
	_, err = svc.StageGuestDetails(context.Background(), customerID, in)
	assert.True(t, errors.Is(err, bookingerr.ErrAmountMismatch))
}

func TestStageGuestDetailsTwiceConflicts(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "USDT",
		decimal.RequireFromString("250.00"), decimal.RequireFromString("250.00"))
	require.NoError(t, err)

	_, err = svc.StageGuestDetails(context.Background(), customerID, validStageInput(p.PaymentID, p.Amount))
	require.NoError(t, err)

	// One open booking side per payment; a second staging is a conflict,
	// not a second processing record at the same amount.
	_, err = svc.StageGuestDetails(context.Background(), customerID, validStageInput(p.PaymentID, p.Amount))
	assert.True(t, errors.Is(err, bookingerr.ErrAlreadyStaged))
}

func TestStageGuestDetailsWrongCustomer(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "USDT",
		decimal.RequireFromString("250.00"), decimal.RequireFromString("250.00"))
	require.NoError(t, err)

	// Another customer must not see this payment at all.
	_, err = svc.StageGuestDetails(context.Background(), uuid.New(), validStageInput(p.PaymentID, p.Amount))
	assert.True(t, errors.Is(err, bookingerr.ErrNotFound))
}

func TestStageGuestDetailsValidation(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "USDT",
		decimal.RequireFromString("250.00"), decimal.RequireFromString("250.00"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*StageGuestDetailsInput)
	}{
		{"missing hotel code", func(in *StageGuestDetailsInput) { in.HotelCode = " " }},
		{"check-in in the past", func(in *StageGuestDetailsInput) {
			in.CheckIn = time.Now().UTC().AddDate(0, 0, -2)
		}},
		{"check-out before check-in", func(in *StageGuestDetailsInput) {
			in.CheckOut = in.CheckIn.AddDate(0, 0, -1)
		}},
		{"empty guest list", func(in *StageGuestDetailsInput) { in.Guests = nil }},
		{"unnamed guest", func(in *StageGuestDetailsInput) { in.Guests[0].Name = "" }},
		{"future date of birth", func(in *StageGuestDetailsInput) {
			in.Guests[0].DateOfBirth = time.Now().UTC().AddDate(1, 0, 0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validStageInput(p.PaymentID, p.Amount)
			tt.mutate(&in)
			_, err := svc.StageGuestDetails(context.Background(), customerID, in)
			assert.True(t, errors.Is(err, bookingerr.ErrValidation))
		})
	}
}

func TestGetPaymentScopedToCustomer(t *testing.T) {
	svc, _, _, customerID := newTestPaymentService()

	p, err := svc.InitiatePayment(context.Background(), customerID,
		"USDT", "TON", "USDT",
		decimal.RequireFromString("75.00"), decimal.RequireFromString("75.00"))
	require.NoError(t, err)

	got, err := svc.GetPayment(context.Background(), customerID, p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, p.PaymentID, got.PaymentID)

	_, err = svc.GetPayment(context.Background(), uuid.New(), p.PaymentID)
	assert.True(t, errors.Is(err, bookingerr.ErrNotFound))
}
