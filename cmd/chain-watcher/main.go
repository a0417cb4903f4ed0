package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/staychain/backend/internal/bookingerr"
	"github.com/staychain/backend/internal/config"
	"github.com/staychain/backend/internal/db"
	"github.com/staychain/backend/internal/events"
	"github.com/staychain/backend/internal/repositories"
	"github.com/staychain/backend/internal/services"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"
)

const (
	redisCursorLT   = "chain-watcher:cursor:lt"
	redisCursorHash = "chain-watcher:cursor:hash"
	redisProcessed  = "chain-watcher:tx:"
	redisRetrySet   = "chain-watcher:retry"
	processedTTL    = 7 * 24 * time.Hour
	pollInterval    = 5 * time.Second
	txBatchSize     = 100
)

// retryTransfer is an observed transfer that matched no open payment yet.
// It stays in the retry set and is re-offered to the matcher every poll cycle
// until it settles or outlives the collision window.
type retryTransfer struct {
	LT        uint64 `json:"lt"`
	Sender    string `json:"sender"`
	Amount    string `json:"amount"`
	FirstSeen int64  `json:"first_seen"`
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ReceivingAddress == "" {
		log.Fatal("RECEIVING_ADDRESS is required")
	}

	receiving, err := address.ParseAddr(cfg.ReceivingAddress)
	if err != nil {
		log.Fatal("invalid RECEIVING_ADDRESS", zap.String("addr", cfg.ReceivingAddress), zap.Error(err))
	}

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
	reservationClient := services.NewReservationClient(cfg.ReservationServiceURL, log)
	notifyClient := services.NewNotifyClient(cfg.NotifyServiceURL, log)

	settlement := services.NewSettlementService(paymentRepo, guestRepo, reservationClient, notifyClient, publisher, log)

	tonAPI, err := connectToTON(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	log.Info("chain watcher started",
		zap.String("receiving_address", receiving.String()),
		zap.String("network", cfg.TONNetwork),
		zap.String("token", cfg.SettlementToken),
	)

	initCursor(ctx, tonAPI, receiving, rdb, log)

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%s", cfg.WatcherPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := pollAndProcess(ctx, tonAPI, receiving, cfg, settlement, rdb, log); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down chain watcher")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// connectToTON establishes a connection to the TON network.
// If LITE_SERVER_HOST + LITE_SERVER_KEY are set, connects to a specific lite
// server; otherwise auto-discovers lite servers from the global TON config
// based on TON_NETWORK.
func connectToTON(ctx context.Context, cfg *config.Config, log *zap.Logger) (ton.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		var configURL string
		switch strings.ToLower(cfg.TONNetwork) {
		case "mainnet":
			configURL = "https://ton.org/global.config.json"
		default:
			configURL = "https://ton.org/testnet-global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.TONNetwork))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(cfg.TONNetwork) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}

	api := ton.NewAPIClient(client, proofPolicy).WithRetry()
	return api, nil
}

// initCursor sets the initial cursor position. On first run it stores the
// account's current LastTxLT so only transfers arriving after startup are
// processed.
func initCursor(ctx context.Context, api ton.APIClientWrapped, addr *address.Address, rdb *redis.Client, log *zap.Logger) {
	existing, _ := rdb.Get(ctx, redisCursorLT).Result()
	if existing != "" {
		log.Info("resuming from saved cursor", zap.String("lt", existing))
		return
	}

	block, err := api.CurrentMasterchainInfo(ctx)
	if err != nil {
		log.Warn("failed to get master block for cursor init", zap.Error(err))
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	account, err := api.GetAccount(ctx, block, addr)
	if err != nil {
		log.Warn("failed to get account for cursor init", zap.Error(err))
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		log.Info("receiving address not active yet, starting from LT=0")
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	saveCursor(ctx, rdb, account.LastTxLT, account.LastTxHash)
	log.Info("cursor initialized at current account state (skipping historical transactions)",
		zap.Uint64("lt", account.LastTxLT),
		zap.String("hash", hex.EncodeToString(account.LastTxHash)),
	)
}

func loadCursorLT(ctx context.Context, rdb *redis.Client) uint64 {
	val, err := rdb.Get(ctx, redisCursorLT).Result()
	if err != nil || val == "" {
		return 0
	}
	lt, _ := strconv.ParseUint(val, 10, 64)
	return lt
}

func saveCursor(ctx context.Context, rdb *redis.Client, lt uint64, hash []byte) {
	rdb.Set(ctx, redisCursorLT, strconv.FormatUint(lt, 10), 0)
	rdb.Set(ctx, redisCursorHash, hex.EncodeToString(hash), 0)
}

// pollAndProcess runs a single poll cycle: fetch transactions newer than the
// cursor, feed incoming transfers to the settlement matcher, advance the
// cursor.
func pollAndProcess(
	ctx context.Context,
	api ton.APIClientWrapped,
	addr *address.Address,
	cfg *config.Config,
	settlement *services.SettlementService,
	rdb *redis.Client,
	log *zap.Logger,
) error {
	cursorLT := loadCursorLT(ctx, rdb)

	block, err := api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("get master block: %w", err)
	}

	account, err := api.GetAccount(ctx, block, addr)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return nil
	}

	if account.LastTxLT <= cursorLT {
		return nil
	}

	newTxs, err := fetchNewTransactions(ctx, api, addr, account, cursorLT)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	if len(newTxs) > 0 {
		log.Info("found new transactions", zap.Int("count", len(newTxs)))
		for _, tx := range newTxs {
			processIncomingTx(ctx, tx, cfg, settlement, rdb, log)
		}
	}

	retryUnmatched(ctx, cfg, settlement, rdb, log)

	saveCursor(ctx, rdb, account.LastTxLT, account.LastTxHash)
	return nil
}

// retryUnmatched re-offers queued transfers to the matcher. A transfer that
// arrived moments before its payment was initiated matches on a later cycle;
// one older than the collision window can never match and is parked for
// manual reconciliation.
func retryUnmatched(
	ctx context.Context,
	cfg *config.Config,
	settlement *services.SettlementService,
	rdb *redis.Client,
	log *zap.Logger,
) {
	entries, err := rdb.HGetAll(ctx, redisRetrySet).Result()
	if err != nil || len(entries) == 0 {
		return
	}

	for txHash, raw := range entries {
		var rt retryTransfer
		if err := json.Unmarshal([]byte(raw), &rt); err != nil {
			rdb.HDel(ctx, redisRetrySet, txHash)
			continue
		}
		amount, err := decimal.NewFromString(rt.Amount)
		if err != nil {
			rdb.HDel(ctx, redisRetrySet, txHash)
			continue
		}

		if time.Since(time.Unix(rt.FirstSeen, 0)) > cfg.CollisionWindow {
			rdb.HDel(ctx, redisRetrySet, txHash)
			rdb.Set(ctx, fmt.Sprintf("%s%d", redisProcessed, rt.LT), "unmatched", processedTTL)
			log.Warn("unmatched transfer outlived the collision window, kept for manual reconciliation",
				zap.Uint64("lt", rt.LT),
				zap.String("amount", rt.Amount),
				zap.String("tx_hash", txHash),
			)
			continue
		}

		result, err := settlement.OnTransferObserved(ctx, cfg.SettlementToken, cfg.SettlementNetwork, amount, txHash, rt.Sender)
		if err != nil {
			if !errors.Is(err, bookingerr.ErrNotFound) {
				log.Error("settlement retry failed",
					zap.Uint64("lt", rt.LT),
					zap.String("tx_hash", txHash),
					zap.Error(err),
				)
			}
			continue
		}

		rdb.HDel(ctx, redisRetrySet, txHash)
		rdb.Set(ctx, fmt.Sprintf("%s%d", redisProcessed, rt.LT), "settled:"+result.PaymentID.String(), processedTTL)
		log.Info("deferred transfer settled",
			zap.Uint64("lt", rt.LT),
			zap.String("payment_id", result.PaymentID.String()),
			zap.String("reservation_id", result.ReservationID),
		)
	}
}

// fetchNewTransactions retrieves all transactions with LT > cursorLT.
// ListTransactions returns results oldest-first; we paginate backwards until
// we reach the cursor, then return in chronological order.
func fetchNewTransactions(
	ctx context.Context,
	api ton.APIClientWrapped,
	addr *address.Address,
	account *tlb.Account,
	cursorLT uint64,
) ([]*tlb.Transaction, error) {
	var allTxs []*tlb.Transaction

	lt := account.LastTxLT
	hash := account.LastTxHash

	for {
		txs, err := api.ListTransactions(ctx, addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			allTxs = append(allTxs, tx)
		}

		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(allTxs, func(i, j int) bool {
		return allTxs[i].LT < allTxs[j].LT
	})

	return allTxs, nil
}

// processIncomingTx hands one incoming transfer to the settlement matcher.
// The channel carries no memo or sub-address: the rounded amount is the only
// key available to correlate the transfer with an open payment.
func processIncomingTx(
	ctx context.Context,
	tx *tlb.Transaction,
	cfg *config.Config,
	settlement *services.SettlementService,
	rdb *redis.Client,
	log *zap.Logger,
) {
	if tx.IO.In == nil {
		return
	}

	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil {
		return
	}

	if inMsg.Bounced {
		return
	}

	nano := inMsg.Amount.Nano()
	if nano.Sign() <= 0 {
		return
	}

	// Short-circuit within overlapping fetches; the durable idempotency
	// check lives in the matcher itself.
	txKey := fmt.Sprintf("%s%d", redisProcessed, tx.LT)
	if rdb.Exists(ctx, txKey).Val() > 0 {
		return
	}

	amount := decimal.NewFromBigInt(nano, -9).Round(2)
	txHash := hex.EncodeToString(tx.Hash)
	sender := inMsg.SrcAddr.String()

	log.Info("incoming transfer detected",
		zap.Uint64("lt", tx.LT),
		zap.String("from", sender),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("tx_hash", txHash),
	)

	result, err := settlement.OnTransferObserved(ctx, cfg.SettlementToken, cfg.SettlementNetwork, amount, txHash, sender)
	if err != nil {
		if errors.Is(err, bookingerr.ErrNotFound) {
			// No open payment for this amount yet. The matching record may
			// be initiated moments from now, so the transfer goes into the
			// retry set instead of being marked processed. HSetNX keeps the
			// original first-seen time across redeliveries.
			data, _ := json.Marshal(retryTransfer{
				LT:        tx.LT,
				Sender:    sender,
				Amount:    amount.StringFixed(2),
				FirstSeen: time.Now().Unix(),
			})
			rdb.HSetNX(ctx, redisRetrySet, txHash, data)
			return
		}
		log.Error("settlement failed, will retry on redelivery",
			zap.Uint64("lt", tx.LT),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return
	}

	rdb.Set(ctx, txKey, "settled:"+result.PaymentID.String(), processedTTL)

	log.Info("transfer settled",
		zap.Uint64("lt", tx.LT),
		zap.String("payment_id", result.PaymentID.String()),
		zap.String("reservation_id", result.ReservationID),
		zap.Bool("already_processed", result.AlreadyProcessed),
		zap.Bool("requires_review", result.RequiresReview),
	)
}
