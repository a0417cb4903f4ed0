package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type SessionResponse struct {
	Token      string `json:"token"`
	CustomerID string `json:"customer_id"`
	ExpiresIn  int    `json:"expires_in"`
}

type QuoteResponse struct {
	Currency        string `json:"currency"`
	Amount          string `json:"amount"`
	ConvertedAmount string `json:"converted_amount"`
	Rate            string `json:"rate"`
}

// PaymentInstructions tells the customer what to send where. The amount is
// the correlation key and must be transferred exactly.
type PaymentInstructions struct {
	PaymentID        string `json:"payment_id"`
	Token            string `json:"token"`
	Blockchain       string `json:"blockchain"`
	Amount           string `json:"amount"`
	ReceivingAddress string `json:"receiving_address"`
	Status           string `json:"status"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type PaymentStatusResponse struct {
	PaymentID     string  `json:"payment_id"`
	Status        string  `json:"status"`
	Amount        string  `json:"amount"`
	TxHash        *string `json:"tx_hash,omitempty"`
	SenderAddress *string `json:"sender_address,omitempty"`
}

type BookingStatusResponse struct {
	ReservationID string  `json:"reservation_id"`
	Status        string  `json:"status"`
	HotelCode     string  `json:"hotel_code"`
	CheckIn       string  `json:"check_in"`
	CheckOut      string  `json:"check_out"`
	TotalAmount   string  `json:"total_amount"`
	Adults        int     `json:"adults"`
	Children      int     `json:"children"`
	Infants       int     `json:"infants"`
	TxHash        *string `json:"tx_hash,omitempty"`
}
