package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Guest-details statuses
const (
	GuestDetailsStatusProcessing = "processing"
	GuestDetailsStatusConfirmed  = "confirmed"
	GuestDetailsStatusCancelled  = "cancelled"
)

var ValidGuestDetailsTransitions = map[string][]string{
	GuestDetailsStatusProcessing: {GuestDetailsStatusConfirmed, GuestDetailsStatusCancelled},
	GuestDetailsStatusConfirmed:  {},
	GuestDetailsStatusCancelled:  {},
}

func IsValidGuestDetailsTransition(from, to string) bool {
	allowed, ok := ValidGuestDetailsTransitions[from]
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

// Guest age categories
const (
	GuestCategoryInfant = "infant" // 2 years and under
	GuestCategoryChild  = "child"  // over 2, 12 and under
	GuestCategoryAdult  = "adult"  // over 12
)

type Guest struct {
	Name        string    `json:"name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Category    string    `json:"category"` // derived, see GuestCategoryAt
}

// GuestCategoryAt derives the age category of a guest as of the given date,
// usually check-in. Age is completed years: a birthday falling on the
// reference date counts as already turned.
func GuestCategoryAt(dob, at time.Time) string {
	years := at.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	switch {
	case years <= 2:
		return GuestCategoryInfant
	case years <= 12:
		return GuestCategoryChild
	default:
		return GuestCategoryAdult
	}
}

// GuestDetailsRecord is the booking side of a payment attempt. There is no
// foreign key to the payment row: on the settlement channel the two sides are
// joined by amount equality inside overlapping open windows. PaymentID is an
// auditable echo of the correlation id handed out at initiation, carried so
// the join can be verified after the fact.
type GuestDetailsRecord struct {
	ID            uuid.UUID       `json:"id"`
	ReservationID string          `json:"reservation_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	HotelCode     string          `json:"hotel_code"`
	RateCode      string          `json:"rate_code"`
	RoomCode      string          `json:"room_code"`
	CheckIn       time.Time       `json:"check_in"`
	CheckOut      time.Time       `json:"check_out"`
	Guests        []Guest         `json:"guests"`
	Adults        int             `json:"adults"`
	Children      int             `json:"children"`
	Infants       int             `json:"infants"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	TxHash        *string         `json:"tx_hash,omitempty"`
	SenderAddress *string         `json:"sender_address,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CountCategories recomputes the aggregate guest counts from the guest list.
func (g *GuestDetailsRecord) CountCategories() {
	g.Adults, g.Children, g.Infants = 0, 0, 0
	for _, guest := range g.Guests {
		switch guest.Category {
		case GuestCategoryInfant:
			g.Infants++
		case GuestCategoryChild:
			g.Children++
		default:
			g.Adults++
		}
	}
}
