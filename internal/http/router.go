package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/staychain/backend/internal/config"
	"github.com/staychain/backend/internal/http/handlers"
	"github.com/staychain/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	paymentHandler *handlers.PaymentHandler,
	bookingHandler *handlers.BookingHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Auth
	api.Post("/auth/session", authHandler.Session)

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Payments
	protected.Post("/payments/quote", paymentHandler.Quote)
	protected.Post("/payments/initiate", paymentHandler.InitiatePayment)
	protected.Get("/payments/:paymentId", paymentHandler.GetPayment)

	// Bookings
	protected.Post("/bookings/stage", bookingHandler.StageGuestDetails)
	protected.Get("/bookings/:reservationId", bookingHandler.GetBooking)
}
