package dto

type SessionRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

type QuoteRequest struct {
	Currency string `json:"currency" validate:"required,alpha"`
	Amount   string `json:"amount" validate:"required"`
}

type InitiatePaymentRequest struct {
	Token      string `json:"token" validate:"required"`
	Blockchain string `json:"blockchain" validate:"required"`
	Currency   string `json:"currency" validate:"required"`
	BaseAmount string `json:"base_amount" validate:"required"`
	// QuotedAmount is the conversion the client received from /quote,
	// echoed back so the server can detect a stale quote.
	QuotedAmount string `json:"quoted_amount" validate:"required"`
}

type GuestRequest struct {
	Name        string `json:"name" validate:"required"`
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
}

type StageGuestDetailsRequest struct {
	PaymentID   string         `json:"payment_id" validate:"required,uuid"`
	HotelCode   string         `json:"hotel_code" validate:"required"`
	RateCode    string         `json:"rate_code" validate:"required"`
	RoomCode    string         `json:"room_code" validate:"required"`
	CheckIn     string         `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut    string         `json:"check_out" validate:"required,datetime=2006-01-02"`
	Guests      []GuestRequest `json:"guests" validate:"required,min=1,dive"`
	TotalAmount string         `json:"total_amount" validate:"required"`
}
