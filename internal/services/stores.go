package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/models"
)

// PaymentStore is the durable ledger of payment records. Implemented by
// repositories.PaymentRepo; service tests substitute in-memory fakes.
type PaymentStore interface {
	// InsertPending persists a pending record, returning
	// bookingerr.ErrAmountTaken when the amount is already reserved on the
	// same settlement channel.
	InsertPending(ctx context.Context, p *models.PaymentRecord) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.PaymentRecord, error)
	FindPendingByAmount(ctx context.Context, token, blockchain string, amount decimal.Decimal) (*models.PaymentRecord, error)
	GetConfirmedByTxHash(ctx context.Context, txHash string) (*models.PaymentRecord, error)
	// ConfirmPending is a CAS update: false means the record was no longer
	// pending and nothing was written.
	ConfirmPending(ctx context.Context, id uuid.UUID, txHash, senderAddress string) (bool, error)
	CancelExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// GuestStore is the durable store of staged booking details.
type GuestStore interface {
	// InsertProcessing persists a processing record, returning
	// bookingerr.ErrAlreadyStaged when the payment already carries an open
	// one.
	InsertProcessing(ctx context.Context, g *models.GuestDetailsRecord) error
	GetByReservationID(ctx context.Context, reservationID string) (*models.GuestDetailsRecord, error)
	// GetByPaymentID returns the newest record staged for a payment,
	// regardless of status.
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.GuestDetailsRecord, error)
	FindProcessingByAmount(ctx context.Context, amount decimal.Decimal) (*models.GuestDetailsRecord, error)
	GetConfirmedByTxHash(ctx context.Context, txHash string) (*models.GuestDetailsRecord, error)
	ConfirmProcessing(ctx context.Context, reservationID, txHash, senderAddress string) (bool, error)
	CancelExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// CustomerStore backs the customer-existence pre-check.
type CustomerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// CustomerAccountStore backs session issuance.
type CustomerAccountStore interface {
	UpsertByEmail(ctx context.Context, email string, firstName, lastName *string) (*models.Customer, error)
}
