package services

import (
	"context"
	"errors"
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

type settlementFixture struct {
	svc          *SettlementService
	payments     *fakePaymentStore
	guests       *fakeGuestStore
	reservations *fakeReservations
	notifier     *fakeNotifier
	publisher    *fakePublisher
}

func newSettlementFixture() *settlementFixture {
	f := &settlementFixture{
		payments:     &fakePaymentStore{},
		guests:       &fakeGuestStore{},
		reservations: &fakeReservations{},
		notifier:     &fakeNotifier{},
		publisher:    &fakePublisher{},
	}
	f.svc = NewSettlementService(f.payments, f.guests, f.reservations, f.notifier, f.publisher, zap.NewNop())
	return f
}

// seedPending stages a pending payment and, when stage is true, the matching
// processing guest record.
func (f *settlementFixture) seedPending(t *testing.T, amount string, stage bool) (*models.PaymentRecord, *models.GuestDetailsRecord) {
	t.Helper()
	p := &models.PaymentRecord{
		CustomerID: uuid.New(),
		Token:      "USDT",
		Blockchain: "TON",
		PaymentID:  uuid.New(),
		Amount:     decimal.RequireFromString(amount),
		Status:     models.PaymentStatusPending,
	}
	require.NoError(t, f.payments.InsertPending(context.Background(), p))

	if !stage {
		return p, nil
	}

	checkIn := time.Now().UTC().AddDate(0, 1, 0)
	g := &models.GuestDetailsRecord{
		ReservationID: "HB-TEST" + amount,
		PaymentID:     p.PaymentID,
		CustomerID:    p.CustomerID,
		HotelCode:     "HTL-001",
		RateCode:      "BAR",
		RoomCode:      "DBL",
		CheckIn:       checkIn,
		CheckOut:      checkIn.AddDate(0, 0, 2),
		Guests: []models.Guest{
			{Name: "Alice Example", DateOfBirth: checkIn.AddDate(-30, 0, 0), Category: models.GuestCategoryAdult},
		},
		Adults:      1,
		TotalAmount: p.Amount,
		Status:      models.GuestDetailsStatusProcessing,
	}
	require.NoError(t, f.guests.InsertProcessing(context.Background(), g))
	return p, g
}

func TestOnTransferObservedSettlesBoth(t *testing.T) {
	f := newSettlementFixture()
	p, g := f.seedPending(t, "120.01", true)

	res, err := f.svc.OnTransferObserved(context.Background(),
		"USDT", "TON", decimal.RequireFromString("120.01"), "txhash-1", "sender-1")
	require.NoError(t, err)

	assert.Equal(t, p.PaymentID, res.PaymentID)
	assert.Equal(t, g.ReservationID, res.ReservationID)
	assert.Equal(t, "EXT-REF-001", res.BookingRef)
	assert.False(t, res.AlreadyProcessed)
	assert.False(t, res.RequiresReview)

	stored := f.payments.get(p.PaymentID)
	assert.Equal(t, models.PaymentStatusConfirmed, stored.Status)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, "txhash-1", *stored.TxHash)

	booking := f.guests.get(g.ReservationID)
	assert.Equal(t, models.GuestDetailsStatusConfirmed, booking.Status)

	assert.Equal(t, 1, f.reservations.calls)
	assert.Equal(t, 1, f.notifier.calls)
}

func TestOnTransferObservedIdempotentRedelivery(t *testing.T) {
	f := newSettlementFixture()
	p, g := f.seedPending(t, "120.01", true)

	amount := decimal.RequireFromString("120.01")
	first, err := f.svc.OnTransferObserved(context.Background(), "USDT", "TON", amount, "txhash-1", "sender-1")
	require.NoError(t, err)

	second, err := f.svc.OnTransferObserved(context.Background(), "USDT", "TON", amount, "txhash-1", "sender-1")
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, g.ReservationID, second.ReservationID)

	// The redelivery must not trigger a second reservation or notification.
	assert.Equal(t, 1, f.reservations.calls)
	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, models.PaymentStatusConfirmed, f.payments.get(p.PaymentID).Status)
}

func TestOnTransferObservedUnmatchedAmount(t *testing.T) {
	f := newSettlementFixture()
	p, g := f.seedPending(t, "120.01", true)

	_, err := f.svc.OnTransferObserved(context.Background(),
		"USDT", "TON", decimal.RequireFromString("999.99"), "txhash-x", "sender-x")
	assert.True(t, errors.Is(err, bookingerr.ErrNotFound))

	// Nothing changes for open records.
	assert.Equal(t, models.PaymentStatusPending, f.payments.get(p.PaymentID).Status)
	assert.Equal(t, models.GuestDetailsStatusProcessing, f.guests.get(g.ReservationID).Status)
	assert.Equal(t, 0, f.reservations.calls)
}

func TestOnTransferObservedBeforeStaging(t *testing.T) {
	f := newSettlementFixture()
	p, _ := f.seedPending(t, "88.00", false)

	// The customer paid straight after initiation, before staging guest
	// details. Nothing may commit: the transfer waits for redelivery.
	_, err := f.svc.OnTransferObserved(context.Background(),
		"USDT", "TON", decimal.RequireFromString("88.00"), "txhash-2", "sender-2")
	assert.True(t, errors.Is(err, bookingerr.ErrNotFound))
	assert.Equal(t, models.PaymentStatusPending, f.payments.get(p.PaymentID).Status)
	assert.Equal(t, 0, f.reservations.calls)
	assert.Equal(t, 0, f.notifier.calls)
}

func TestOnTransferObservedRedeliveryAfterStaging(t *testing.T) {
	f := newSettlementFixture()
	p, _ := f.seedPending(t, "88.00", false)
	amount := decimal.RequireFromString("88.00")

	_, err := f.svc.OnTransferObserved(context.Background(), "USDT", "TON", amount, "txhash-2", "sender-2")
	require.True(t, errors.Is(err, bookingerr.ErrNotFound))

	// Staging is still possible because the early transfer committed nothing.
	checkIn := time.Now().UTC().AddDate(0, 1, 0)
	g := &models.GuestDetailsRecord{
		ReservationID: "HB-LATESTAGE",
		PaymentID:     p.PaymentID,
		CustomerID:    p.CustomerID,
		HotelCode:     "HTL-001",
		RateCode:      "BAR",
		RoomCode:      "DBL",
		CheckIn:       checkIn,
		CheckOut:      checkIn.AddDate(0, 0, 2),
		Guests:        []models.Guest{{Name: "Alice Example", DateOfBirth: checkIn.AddDate(-30, 0, 0), Category: models.GuestCategoryAdult}},
		Adults:        1,
		TotalAmount:   p.Amount,
		Status:        models.GuestDetailsStatusProcessing,
	}
	require.NoError(t, f.guests.InsertProcessing(context.Background(), g))

	res, err := f.svc.OnTransferObserved(context.Background(), "USDT", "TON", amount, "txhash-2", "sender-2")
	require.NoError(t, err)

	assert.False(t, res.RequiresReview)
	assert.Equal(t, g.ReservationID, res.ReservationID)
	assert.Equal(t, models.PaymentStatusConfirmed, f.payments.get(p.PaymentID).Status)
	assert.Equal(t, models.GuestDetailsStatusConfirmed, f.guests.get(g.ReservationID).Status)
	assert.Equal(t, 1, f.reservations.calls)
}

func TestOnTransferObservedAfterGuestSweep(t *testing.T) {
	f := newSettlementFixture()
	p, g := f.seedPending(t, "88.00", true)

	// The booking side expired; the payment side is still open.
	n, err := f.guests.CancelExpired(context.Background(), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	res, err := f.svc.OnTransferObserved(context.Background(),
		"USDT", "TON", decimal.RequireFromString("88.00"), "txhash-2", "sender-2")
	require.NoError(t, err)

	// The customer did complete the flow, so the late money stays recorded
	// and the pair goes to manual review. No reservation is created.
	assert.True(t, res.RequiresReview)
	assert.Empty(t, res.ReservationID)
	assert.Equal(t, models.PaymentStatusConfirmed, f.payments.get(p.PaymentID).Status)
	assert.Equal(t, models.GuestDetailsStatusCancelled, f.guests.get(g.ReservationID).Status)
	assert.Equal(t, 0, f.reservations.calls)
	assert.Equal(t, 1, f.notifier.calls)
}

func TestOnTransferObservedReservationFailureKeepsSettlement(t *testing.T) {
	f := newSettlementFixture()
	f.reservations.fail = true
	p, g := f.seedPending(t, "120.01", true)

	res, err := f.svc.OnTransferObserved(context.Background(),
		"USDT", "TON", decimal.RequireFromString("120.01"), "txhash-3", "sender-3")
	require.NoError(t, err)

	// The reservation call failed post-commit; the settled records stay
	// settled and only the external booking reference is missing.
	assert.Empty(t, res.BookingRef)
	assert.Equal(t, g.ReservationID, res.ReservationID)
	assert.Equal(t, models.PaymentStatusConfirmed, f.payments.get(p.PaymentID).Status)
	assert.Equal(t, models.GuestDetailsStatusConfirmed, f.guests.get(g.ReservationID).Status)
}

func TestOnTransferObservedMatchesExactAmountOnly(t *testing.T) {
	f := newSettlementFixture()
	base, _ := f.seedPending(t, "120.00", true)
	variant, _ := f.seedPending(t, "120.01", true)

	// The one-cent variant settles its own record, not the base.
	res, err := f.svc.OnTransferObserved(context.Background(),
		"USDT", "TON", decimal.RequireFromString("120.01"), "txhash-4", "sender-4")
	require.NoError(t, err)

	assert.Equal(t, variant.PaymentID, res.PaymentID)
	assert.Equal(t, models.PaymentStatusPending, f.payments.get(base.PaymentID).Status)
}
