package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/events"
	"github.com/staychain/backend/internal/models"
)

// fakePaymentStore mimics the repository including the conditional insert:
// the pending-amount check and the append happen under one lock, the same
// critical section the partial unique index provides in Postgres.
type fakePaymentStore struct {
	mu      sync.Mutex
	records []*models.PaymentRecord
}

func (f *fakePaymentStore) InsertPending(_ context.Context, p *models.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Status == models.PaymentStatusPending &&
			r.Token == p.Token && r.Blockchain == p.Blockchain &&
			r.Amount.Equal(p.Amount) {
			return bookingerr.ErrAmountTaken
		}
	}
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakePaymentStore) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.PaymentID == paymentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, bookingerr.ErrNotFound
}

func (f *fakePaymentStore) FindPendingByAmount(_ context.Context, token, blockchain string, amount decimal.Decimal) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Status == models.PaymentStatusPending &&
			r.Token == token && r.Blockchain == blockchain &&
			r.Amount.Equal(amount) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, bookingerr.ErrNotFound
}

func (f *fakePaymentStore) GetConfirmedByTxHash(_ context.Context, txHash string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Status == models.PaymentStatusConfirmed && r.TxHash != nil && *r.TxHash == txHash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, bookingerr.ErrNotFound
}

func (f *fakePaymentStore) ConfirmPending(_ context.Context, id uuid.UUID, txHash, senderAddress string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id && r.Status == models.PaymentStatusPending {
			r.Status = models.PaymentStatusConfirmed
			r.TxHash = &txHash
			r.SenderAddress = &senderAddress
			r.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) CancelExpired(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.Status == models.PaymentStatusPending && r.CreatedAt.Before(olderThan) {
			r.Status = models.PaymentStatusCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakePaymentStore) get(paymentID uuid.UUID) *models.PaymentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.PaymentID == paymentID {
			cp := *r
			return &cp
		}
	}
	return nil
}

type fakeGuestStore struct {
	mu      sync.Mutex
	records []*models.GuestDetailsRecord
}

func (f *fakeGuestStore) InsertProcessing(_ context.Context, g *models.GuestDetailsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Status == models.GuestDetailsStatusProcessing && r.PaymentID == g.PaymentID {
			return bookingerr.ErrAlreadyStaged
		}
	}
	g.ID = uuid.New()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.UpdatedAt = time.Now().UTC()
	cp := *g
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeGuestStore) GetByReservationID(_ context.Context, reservationID string) (*models.GuestDetailsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ReservationID == reservationID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, bookingerr.ErrNotFound
}

func (f *fakeGuestStore) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*models.GuestDetailsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *models.GuestDetailsRecord
	for _, r := range f.records {
		if r.PaymentID != paymentID {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, bookingerr.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (f *fakeGuestStore) FindProcessingByAmount(_ context.Context, amount decimal.Decimal) (*models.GuestDetailsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Status == models.GuestDetailsStatusProcessing && r.TotalAmount.Equal(amount) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, bookingerr.ErrNotFound
}

func (f *fakeGuestStore) GetConfirmedByTxHash(_ context.Context, txHash string) (*models.GuestDetailsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Status == models.GuestDetailsStatusConfirmed && r.TxHash != nil && *r.TxHash == txHash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, bookingerr.ErrNotFound
}

func (f *fakeGuestStore) ConfirmProcessing(_ context.Context, reservationID, txHash, senderAddress string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ReservationID == reservationID && r.Status == models.GuestDetailsStatusProcessing {
			r.Status = models.GuestDetailsStatusConfirmed
			r.TxHash = &txHash
			r.SenderAddress = &senderAddress
			r.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGuestStore) CancelExpired(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.Status == models.GuestDetailsStatusProcessing && r.CreatedAt.Before(olderThan) {
			r.Status = models.GuestDetailsStatusCancelled
			n++
		}
	}
	return n, nil
}

func (f *fakeGuestStore) get(reservationID string) *models.GuestDetailsRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ReservationID == reservationID {
			cp := *r
			return &cp
		}
	}
	return nil
}

type fakeCustomerStore struct {
	customers map[uuid.UUID]*models.Customer
}

func (f *fakeCustomerStore) GetByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, bookingerr.ErrNotFound
}

type fakeReservations struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeReservations) Create(_ context.Context, _ ReservationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return "", errors.New("reservation service returned 502")
	}
	return "EXT-REF-001", nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) PaymentConfirmed(_ context.Context, _ uuid.UUID, _ decimal.Decimal, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
