package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradeeon/condition-engine/internal/api"
	"github.com/tradeeon/condition-engine/internal/config"
	"github.com/tradeeon/condition-engine/internal/dca"
	"github.com/tradeeon/condition-engine/internal/eventbus"
	"github.com/tradeeon/condition-engine/internal/evaluator"
	"github.com/tradeeon/condition-engine/internal/exchange"
	"github.com/tradeeon/condition-engine/internal/models"
	"github.com/tradeeon/condition-engine/internal/notifier"
	"github.com/tradeeon/condition-engine/internal/paper"
	"github.com/tradeeon/condition-engine/internal/registry"
	"github.com/tradeeon/condition-engine/internal/repository"
	"github.com/tradeeon/condition-engine/pkg/crypto"
	"github.com/tradeeon/condition-engine/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()
	log.Info("connected to database")

	conditionRepo := repository.NewConditionRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	playbookRepo := repository.NewPlaybookRepository(db)
	botRepo := repository.NewBotRepository(db)
	botRunRepo := repository.NewBotRunRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	reg := registry.New(conditionRepo, subscriptionRepo).WithPlaybooks(playbookRepo)

	bus := eventbus.New()

	exch, sink, err := buildSink(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize order sink", utils.Err(err))
	}
	if exch != nil {
		defer exch.Close()
	}

	dcaExecutor := dca.New(sink, positionRepo, orderRepo, botRunRepo, cfg.Exchange.QuoteAsset).
		WithOrderTimeout(cfg.Evaluator.OrderTimeout)
	if result, err := dcaExecutor.Recover(botRepo, positionRepo); err != nil {
		log.Error("DCA recovery failed", utils.Err(err))
	} else {
		log.Info("DCA recovery complete", utils.Int("bots_running", result.BotsRunning), utils.Int("positions_restored", result.PositionsRestored))
	}

	botNotifier := notifier.New(bus, subscriptionRepo, botRepo)
	botNotifier.RegisterExecutor(models.BotTypeDCA, dcaExecutor)

	evalCfg := evaluator.Config{
		CyclePeriod:       cfg.Evaluator.CyclePeriod,
		BarLimit:          cfg.Evaluator.BarLimit,
		MarketDataTimeout: cfg.Evaluator.MarketDataTimeout,
		WorkerPoolSize:    cfg.Evaluator.WorkerPoolSize,
	}

	// Klines/ticker are public Binance REST endpoints; even in paper-trading
	// mode the evaluator still needs a real market-data source, so when no
	// live exchange was connected above, an unconnected (no signed
	// credentials) *Binance client serves bars here.
	marketData := exch
	if marketData == nil {
		marketData = exchange.NewBinance()
	}
	eval := evaluator.New(evalCfg, reg, bus, marketData)

	var priceSource dca.PriceSource
	if exch != nil {
		priceSource = dca.ExchangePriceSource{Exchange: exch}
	} else {
		priceSource = sink.(dca.PriceSource)
	}
	tickerLoop := dca.NewTickerLoop(dcaExecutor, botRepo, priceSource, cfg.Exchange.TickInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := botNotifier.Start(ctx, 2*time.Second); err != nil && err != context.Canceled {
			log.Error("bot notifier stopped", utils.Err(err))
		}
	}()
	go tickerLoop.Run(ctx)
	go func() {
		if err := eval.Run(ctx); err != nil && err != context.Canceled {
			log.Error("evaluator stopped", utils.Err(err))
		}
	}()

	router := api.SetupRoutes()
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", utils.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", utils.Err(err))
	}
	log.Info("server exited")
}

// buildSink constructs the DCA executor's order sink: a live exchange.Binance
// under real credentials, or a paper.Simulator when PAPER_TRADING is set
// (spec.md §4.10's default mode). exch is nil in paper mode, since there is
// nothing to Close.
func buildSink(cfg *config.Config, log *utils.Logger) (exchange.Exchange, dca.Sink, error) {
	if cfg.Exchange.PaperTrading {
		sim := paper.NewSimulator(0, cfg.Exchange.QuoteAsset, cfg.Exchange.PaperInitialBalance, cfg.Exchange.PaperFeeRate, cfg.Exchange.PaperSlippageBps)
		log.Info("order sink: paper trading", utils.Float64("initial_balance", cfg.Exchange.PaperInitialBalance))
		return nil, sim, nil
	}

	salt, err := base64.StdEncoding.DecodeString(cfg.Security.EncryptionSalt)
	if err != nil {
		return nil, nil, fmt.Errorf("decode ENCRYPTION_SALT: %w", err)
	}
	key := crypto.DeriveKey(cfg.Security.EncryptionPassphrase, salt)
	apiKey, err := crypto.Decrypt(cfg.Exchange.APIKeyEncrypted, key)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt api key: %w", err)
	}
	apiSecret, err := crypto.Decrypt(cfg.Exchange.APISecretEncrypted, key)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt api secret: %w", err)
	}

	b := exchange.NewBinance()
	if err := b.Connect(apiKey, apiSecret); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.Exchange.Name, err)
	}
	log.Info("order sink: live exchange", utils.Exchange(b.GetName()))
	return b, b, nil
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
