package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/staychain/backend/internal/auth"
	"github.com/staychain/backend/internal/config"
	"github.com/staychain/backend/internal/http/dto"
	"github.com/staychain/backend/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	customers services.CustomerAccountStore
	cfg       *config.Config
	log       *zap.Logger
}

func NewAuthHandler(customers services.CustomerAccountStore, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{customers: customers, cfg: cfg, log: log}
}

// Session upserts the customer by email and issues a bearer token for the
// payment endpoints.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	var req dto.SessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	customer, err := h.customers.UpsertByEmail(c.Context(), req.Email, req.FirstName, req.LastName)
	if err != nil {
		h.log.Error("customer upsert failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, customer.ID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("token generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.SessionResponse{
		Token:      token,
		CustomerID: customer.ID.String(),
		ExpiresIn:  int(h.cfg.JWTExpiration.Seconds()),
	}})
}
