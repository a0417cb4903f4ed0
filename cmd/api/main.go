package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/staychain/backend/internal/config"
	"github.com/staychain/backend/internal/db"
	"github.com/staychain/backend/internal/events"
	apphttp "github.com/staychain/backend/internal/http"
	"github.com/staychain/backend/internal/http/handlers"
	"github.com/staychain/backend/internal/repositories"
	"github.com/staychain/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	paymentRepo := repositories.NewPaymentRepo(pool)
	guestRepo := repositories.NewGuestRepo(pool)
	customerRepo := repositories.NewCustomerRepo(pool)

	// Services
	converter := services.NewCurrencyService(cfg.SettlementCurrency, cfg.CurrencyRates)
	allocator := services.NewAmountAllocator(paymentRepo, cfg.AllocationMaxSteps, log)
	paymentService := services.NewPaymentService(paymentRepo, guestRepo, customerRepo, converter, allocator, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(customerRepo, cfg, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg, log)
	bookingHandler := handlers.NewBookingHandler(paymentService, log)

	// Settlement events from the chain watcher and sweeper, surfaced in the
	// API logs for operator visibility.
	subscriber := events.NewRedisSubscriber(rdb, log)
	if err := subscriber.Subscribe(ctx, "events:settlement", func(e events.Event) {
		log.Info("settlement event", zap.String("type", e.Type), zap.Any("payload", e.Payload))
	}); err != nil {
		log.Warn("settlement event subscription failed", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, paymentHandler, bookingHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
