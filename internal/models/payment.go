package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusCancelled = "cancelled"
)

// Valid payment state transitions: from -> []to.
// Confirmation and cancellation are both one-way; the sweeper and the
// settlement matcher race for the same pending row and the loser's CAS
// update simply matches zero rows.
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusPending:   {PaymentStatusConfirmed, PaymentStatusCancelled},
	PaymentStatusConfirmed: {},
	PaymentStatusCancelled: {},
}

func IsValidPaymentTransition(from, to string) bool {
	allowed, ok := ValidPaymentTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentRecord is the money side of a booking attempt. The amount doubles
// as the correlation key on the settlement channel: inside the collision
// window at most one pending record may hold a given amount, enforced by a
// partial unique index on (token, blockchain, amount) WHERE status='pending'.
type PaymentRecord struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	Token         string          `json:"token"`
	Blockchain    string          `json:"blockchain"`
	PaymentID     uuid.UUID       `json:"payment_id"` // opaque client-facing correlation id
	Amount        decimal.Decimal `json:"amount"`     // 2-decimal settlement units
	Status        string          `json:"status"`
	TxHash        *string         `json:"tx_hash,omitempty"`
	SenderAddress *string         `json:"sender_address,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
