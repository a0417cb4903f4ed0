package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, customer_id, token, blockchain, payment_id, amount::text, status,
	       tx_hash, sender_address, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	var amount string
	err := row.Scan(&p.ID, &p.CustomerID, &p.Token, &p.Blockchain, &p.PaymentID, &amount, &p.Status,
		&p.TxHash, &p.SenderAddress, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingerr.ErrNotFound
		}
		return nil, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	return &p, nil
}

// InsertPending persists a new pending payment. The partial unique index on
// (token, blockchain, amount) WHERE status='pending' makes this the critical
// section of amount allocation: a collision surfaces as ErrAmountTaken
// instead of a racy read-then-insert.
func (r *PaymentRepo) InsertPending(ctx context.Context, p *models.PaymentRecord) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payments (customer_id, token, blockchain, payment_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, p.CustomerID, p.Token, p.Blockchain, p.PaymentID, p.Amount.StringFixed(2), p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "payments_pending_amount_key" {
			return bookingerr.ErrAmountTaken
		}
		return err
	}
	return nil
}

func (r *PaymentRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.PaymentRecord, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE payment_id = $1
	`, paymentID))
}

// FindPendingByAmount resolves the open payment matching an observed
// transfer. The pending-amount index guarantees at most one row.
func (r *PaymentRepo) FindPendingByAmount(ctx context.Context, token, blockchain string, amount decimal.Decimal) (*models.PaymentRecord, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE token = $1 AND blockchain = $2 AND amount = $3 AND status = 'pending'
	`, token, blockchain, amount.StringFixed(2)))
}

// GetConfirmedByTxHash backs the settlement idempotency check.
func (r *PaymentRepo) GetConfirmedByTxHash(ctx context.Context, txHash string) (*models.PaymentRecord, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE tx_hash = $1 AND status = 'confirmed'
	`, txHash))
}

// ConfirmPending moves a pending payment to confirmed, stamping the on-chain
// evidence. The status guard is the CAS: false means another actor already
// moved the row and the caller must not overwrite.
func (r *PaymentRepo) ConfirmPending(ctx context.Context, id uuid.UUID, txHash, senderAddress string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = 'confirmed', tx_hash = $1, sender_address = $2, updated_at = now()
		WHERE id = $3 AND status = 'pending'
	`, txHash, senderAddress, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelExpired bulk-cancels pending payments created before the horizon.
// The status filter keeps confirmed rows out of reach.
func (r *PaymentRepo) CancelExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = 'cancelled', updated_at = now()
		WHERE status = 'pending' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
