package repositories

import (
	"context"
	"encoding/json"
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

type GuestRepo struct {
	pool *pgxpool.Pool
}

func NewGuestRepo(pool *pgxpool.Pool) *GuestRepo {
	return &GuestRepo{pool: pool}
}

const guestColumns = `id, reservation_id, payment_id, customer_id, hotel_code, rate_code, room_code,
	       check_in, check_out, guests, adults, children, infants, total_amount::text, status,
	       tx_hash, sender_address, created_at, updated_at`

func scanGuestDetails(row pgx.Row) (*models.GuestDetailsRecord, error) {
	var g models.GuestDetailsRecord
	var guestsJSON []byte
	var amount string
	err := row.Scan(&g.ID, &g.ReservationID, &g.PaymentID, &g.CustomerID, &g.HotelCode, &g.RateCode, &g.RoomCode,
		&g.CheckIn, &g.CheckOut, &guestsJSON, &g.Adults, &g.Children, &g.Infants, &amount, &g.Status,
		&g.TxHash, &g.SenderAddress, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingerr.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(guestsJSON, &g.Guests); err != nil {
		return nil, fmt.Errorf("parse stored guest list: %w", err)
	}
	g.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse stored total amount %q: %w", amount, err)
	}
	return &g, nil
}

// InsertProcessing persists a new processing record. The partial unique index
// on payment_id WHERE status='processing' allows at most one open booking side
// per payment; a collision surfaces as ErrAlreadyStaged.
func (r *GuestRepo) InsertProcessing(ctx context.Context, g *models.GuestDetailsRecord) error {
	guestsJSON, err := json.Marshal(g.Guests)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO guest_details (reservation_id, payment_id, customer_id, hotel_code, rate_code, room_code,
		                           check_in, check_out, guests, adults, children, infants, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`, g.ReservationID, g.PaymentID, g.CustomerID, g.HotelCode, g.RateCode, g.RoomCode,
		g.CheckIn, g.CheckOut, guestsJSON, g.Adults, g.Children, g.Infants,
		g.TotalAmount.StringFixed(2), g.Status,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "guest_details_processing_payment_key" {
			return bookingerr.ErrAlreadyStaged
		}
		return err
	}
	return nil
}

func (r *GuestRepo) GetByReservationID(ctx context.Context, reservationID string) (*models.GuestDetailsRecord, error) {
	return scanGuestDetails(r.pool.QueryRow(ctx, `
		SELECT `+guestColumns+`
		FROM guest_details WHERE reservation_id = $1
	`, reservationID))
}

// GetByPaymentID returns the newest record staged for a payment, whatever its
// status. Settlement uses it to tell a swept booking side apart from one that
// was never staged.
func (r *GuestRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.GuestDetailsRecord, error) {
	return scanGuestDetails(r.pool.QueryRow(ctx, `
		SELECT `+guestColumns+`
		FROM guest_details
		WHERE payment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, paymentID))
}

// FindProcessingByAmount resolves the staged booking side of an observed
// transfer. Amount equality is the only join the settlement channel allows;
// the newest open record wins if windows ever overlap.
func (r *GuestRepo) FindProcessingByAmount(ctx context.Context, amount decimal.Decimal) (*models.GuestDetailsRecord, error) {
	return scanGuestDetails(r.pool.QueryRow(ctx, `
		SELECT `+guestColumns+`
		FROM guest_details
		WHERE total_amount = $1 AND status = 'processing'
		ORDER BY created_at DESC
		LIMIT 1
	`, amount.StringFixed(2)))
}

func (r *GuestRepo) GetConfirmedByTxHash(ctx context.Context, txHash string) (*models.GuestDetailsRecord, error) {
	return scanGuestDetails(r.pool.QueryRow(ctx, `
		SELECT `+guestColumns+`
		FROM guest_details
		WHERE tx_hash = $1 AND status = 'confirmed'
	`, txHash))
}

// ConfirmProcessing is the guest-side CAS confirm, mirroring the payment side.
func (r *GuestRepo) ConfirmProcessing(ctx context.Context, reservationID, txHash, senderAddress string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE guest_details
		SET status = 'confirmed', tx_hash = $1, sender_address = $2, updated_at = now()
		WHERE reservation_id = $3 AND status = 'processing'
	`, txHash, senderAddress, reservationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *GuestRepo) CancelExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE guest_details
		SET status = 'cancelled', updated_at = now()
		WHERE status = 'processing' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
