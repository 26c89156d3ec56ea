package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/params"
	"github.com/uhyunpark/ledgerdex/pkg/api"
	"github.com/uhyunpark/ledgerdex/pkg/app/core"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
	"github.com/uhyunpark/ledgerdex/pkg/crypto"
	"github.com/uhyunpark/ledgerdex/pkg/events"
	"github.com/uhyunpark/ledgerdex/pkg/storage"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	// ---- Genesis ----
	var genesis *params.Genesis
	if cfg.GenesisFile != "" {
		if genesis, err = params.LoadGenesis(cfg.GenesisFile); err != nil {
			sugar.Fatalw("genesis_load_failed", "file", cfg.GenesisFile, "err", err)
		}
	}
	if cfg.Exchange.Owner == (common.Address{}) {
		cfg.Exchange.Owner = genesis.OwnerAddress(common.Address{})
	}
	if cfg.Exchange.Owner == (common.Address{}) {
		sugar.Warn("no_exchange_owner - token listing is disabled")
	}

	// ---- Storage ----
	var store core.Store
	if cfg.Storage.DataDir != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			sugar.Fatalw("data_dir_failed", "dir", cfg.Storage.DataDir, "err", err)
		}
		ps, err := storage.NewPebbleStore(cfg.Storage.DataDir)
		if err != nil {
			sugar.Fatalw("storage_open_failed", "dir", cfg.Storage.DataDir, "err", err)
		}
		defer ps.Close()
		store = ps
		sugar.Infow("storage_opened", "backend", "pebble", "dir", cfg.Storage.DataDir)
	} else {
		store = storage.NewInMemoryStore()
		sugar.Info("storage_opened - in memory, state is lost on exit")
	}

	var opts []exchange.Option
	if cfg.Storage.WALFile != "" {
		wal, err := storage.NewFileWAL(cfg.Storage.WALFile, store)
		if err != nil {
			sugar.Fatalw("wal_open_failed", "file", cfg.Storage.WALFile, "err", err)
		}
		defer wal.Close()
		opts = append(opts, exchange.WithJournal(wal))
	}

	// ---- Exchange ----
	dex, err := core.New(cfg.Exchange, store, logger, opts...)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	if genesis != nil {
		applied, err := dex.ApplyGenesis(genesis)
		if err != nil {
			sugar.Fatalw("genesis_apply_failed", "err", err)
		}
		sugar.Infow("genesis", "applied", applied, "tokens", len(genesis.Tokens), "balances", len(genesis.Balances))
	}

	status := dex.Status()
	sugar.Infow("exchange_ready",
		"quote", status.QuoteAsset,
		"owner", status.Owner,
		"tokens", status.Tokens,
		"accounts", status.Accounts,
		"next_order_id", status.NextOrderID,
		"state_hash", status.StateHash)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Trade events ----
	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.Events.KafkaBrokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.TradeTopic)
		sugar.Infow("kafka_enabled", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.TradeTopic)
	}
	dispatcher := events.NewDispatcher(pub, logger.Named("events"), cfg.Events.Buffer)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	// ---- API Server ----
	apiOpts := []api.Option{api.WithAllowedOrigins(cfg.API.AllowedOrigins)}
	if cfg.API.RequireSignatures {
		domain := crypto.DefaultDomain()
		domain.ChainID = big.NewInt(cfg.API.ChainID)
		apiOpts = append(apiOpts, api.WithVerifier(crypto.NewVerifier(domain)))
		sugar.Infow("signatures_required", "chain_id", cfg.API.ChainID)
	}
	apiServer := api.NewServer(dex, logger.Named("api"), apiOpts...)

	// Hook exchange to consumers: runs under the exchange lock, so neither
	// side may call back into the exchange.
	dex.Exchange.OnTrade = func(t core.Trade) {
		dispatcher.Enqueue(t)
		apiServer.PublishTrade(t)
	}

	if err := apiServer.Start(ctx, cfg.API.Addr); err != nil {
		sugar.Errorw("api_server_failed", "err", err)
		stop()
	}

	<-dispatcherDone
	sugar.Infow("exchange_stopped",
		"state_hash", dex.Status().StateHash,
		"dropped_trade_events", dispatcher.Dropped())
}
