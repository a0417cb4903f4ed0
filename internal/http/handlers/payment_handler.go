package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/config"
	"github.com/staychain/backend/internal/http/dto"
	"github.com/staychain/backend/internal/middleware"
	"github.com/staychain/backend/internal/services"
	"go.uber.org/zap"
)

var validate = validator.New()

type PaymentHandler struct {
	paymentService *services.PaymentService
	cfg            *config.Config
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, cfg *config.Config, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, cfg: cfg, log: log}
}

// Quote converts a customer-facing price into the settlement currency. The
// response is echoed back verbatim on initiation.
func (h *PaymentHandler) Quote(c *fiber.Ctx) error {
	var req dto.QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}

	conv, err := h.paymentService.Quote(req.Currency, amount)
	if err != nil {
		return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.QuoteResponse{
		Currency:        req.Currency,
		Amount:          amount.StringFixed(2),
		ConvertedAmount: conv.ConvertedAmount.StringFixed(2),
		Rate:            conv.Rate.String(),
	}})
}

func (h *PaymentHandler) InitiatePayment(c *fiber.Ctx) error {
	var req dto.InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	baseAmount, err := decimal.NewFromString(req.BaseAmount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid base_amount"})
	}
	quotedAmount, err := decimal.NewFromString(req.QuotedAmount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid quoted_amount"})
	}

	customerID := middleware.GetCustomerID(c)
	payment, err := h.paymentService.InitiatePayment(c.Context(), customerID,
		req.Token, req.Blockchain, req.Currency, baseAmount, quotedAmount)
	if err != nil {
		if errors.Is(err, bookingerr.ErrAmountsExhausted) {
			h.log.Error("amount allocation exhausted", zap.String("customer_id", customerID.String()))
		}
		return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	// Submission success means "durably pending", not "paid". Confirmation
	// is observed asynchronously and polled via GetPayment.
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.PaymentInstructions{
		PaymentID:        payment.PaymentID.String(),
		Token:            payment.Token,
		Blockchain:       payment.Blockchain,
		Amount:           payment.Amount.StringFixed(2),
		ReceivingAddress: h.cfg.ReceivingAddress,
		Status:           payment.Status,
		ExpiresInSeconds: int(h.cfg.CollisionWindow.Seconds()),
	}})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("paymentId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payment id"})
	}

	payment, err := h.paymentService.GetPayment(c.Context(), middleware.GetCustomerID(c), paymentID)
	if err != nil {
		return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: "payment not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PaymentStatusResponse{
		PaymentID:     payment.PaymentID.String(),
		Status:        payment.Status,
		Amount:        payment.Amount.StringFixed(2),
		TxHash:        payment.TxHash,
		SenderAddress: payment.SenderAddress,
	}})
}
