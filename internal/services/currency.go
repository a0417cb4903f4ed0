package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
)

// Conversion is the result of normalizing a customer-facing price into the
// settlement currency. It is an explicit value the caller carries forward
// through the request chain; nothing about the last conversion is kept here.
type Conversion struct {
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	Rate            decimal.Decimal `json:"rate"` // zero on pass-through
}

// CurrencyService converts prices into the settlement currency using
// statically configured rates.
type CurrencyService struct {
	settlementCurrency string
	rates              map[string]decimal.Decimal
}

func NewCurrencyService(settlementCurrency string, rates map[string]decimal.Decimal) *CurrencyService {
	return &CurrencyService{
		settlementCurrency: strings.ToUpper(settlementCurrency),
		rates:              rates,
	}
}

func (s *CurrencyService) Convert(code string, amount decimal.Decimal) (Conversion, error) {
	if !amount.IsPositive() {
		return Conversion{}, fmt.Errorf("%w: amount must be positive", bookingerr.ErrValidation)
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Conversion{}, fmt.Errorf("%w: currency code is required", bookingerr.ErrValidation)
	}

	if code == s.settlementCurrency {
		return Conversion{ConvertedAmount: amount.Round(2), Rate: decimal.Zero}, nil
	}

	rate, ok := s.rates[code]
	if !ok || !rate.IsPositive() {
		return Conversion{}, fmt.Errorf("%w: %s -> %s", bookingerr.ErrMissingRate, code, s.settlementCurrency)
	}

	return Conversion{
		ConvertedAmount: amount.Mul(rate).Round(2),
		Rate:            rate,
	}, nil
}
