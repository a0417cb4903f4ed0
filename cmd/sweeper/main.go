package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/staychain/backend/internal/config"
	"github.com/staychain/backend/internal/db"
	"github.com/staychain/backend/internal/events"
	"github.com/staychain/backend/internal/repositories"
	"github.com/staychain/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	paymentRepo := repositories.NewPaymentRepo(pool)
	guestRepo := repositories.NewGuestRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	sweeper := services.NewExpirySweeper(paymentRepo, guestRepo, publisher, cfg.CollisionWindow, log)

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%s", cfg.SweeperPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down sweeper")
		cancel()
	}()

	sweeper.Start(ctx, cfg.SweepInterval)
}
