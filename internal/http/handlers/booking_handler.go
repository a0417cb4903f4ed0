package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/http/dto"
	"github.com/staychain/backend/internal/middleware"
	"github.com/staychain/backend/internal/services"
	"go.uber.org/zap"
)

type BookingHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewBookingHandler(paymentService *services.PaymentService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{paymentService: paymentService, log: log}
}

func (h *BookingHandler) StageGuestDetails(c *fiber.Ctx) error {
	var req dto.StageGuestDetailsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payment_id"})
	}
	totalAmount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid total_amount"})
	}

	// Date formats are already enforced by the validator tags.
	checkIn, _ := time.Parse("2006-01-02", req.CheckIn)
	checkOut, _ := time.Parse("2006-01-02", req.CheckOut)

	in := services.StageGuestDetailsInput{
		PaymentID:   paymentID,
		HotelCode:   req.HotelCode,
		RateCode:    req.RateCode,
		RoomCode:    req.RoomCode,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		TotalAmount: totalAmount,
	}
	for _, g := range req.Guests {
		dob, err := time.Parse("2006-01-02", g.DateOfBirth)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid date_of_birth"})
		}
		in.Guests = append(in.Guests, services.GuestInput{Name: g.Name, DateOfBirth: dob})
	}

	record, err := h.paymentService.StageGuestDetails(c.Context(), middleware.GetCustomerID(c), in)
	if err != nil {
		return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: record})
}

func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	reservationID := c.Params("reservationId")
	if reservationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid reservation id"})
	}

	record, err := h.paymentService.GetBooking(c.Context(), middleware.GetCustomerID(c), reservationID)
	if err != nil {
		return c.Status(statusFor(err)).JSON(dto.ErrorResponse{Error: "reservation not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BookingStatusResponse{
		ReservationID: record.ReservationID,
		Status:        record.Status,
		HotelCode:     record.HotelCode,
		CheckIn:       record.CheckIn.Format("2006-01-02"),
		CheckOut:      record.CheckOut.Format("2006-01-02"),
		TotalAmount:   record.TotalAmount.StringFixed(2),
		Adults:        record.Adults,
		Children:      record.Children,
		Infants:       record.Infants,
		TxHash:        record.TxHash,
	}})
}
