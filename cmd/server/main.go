package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
	"medalchain/internal/config"
	"medalchain/internal/idempotency"
	"medalchain/internal/medals"
	"medalchain/internal/metrics"
	"medalchain/internal/nft"
	"medalchain/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.Service.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
	logger.Info("service stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

type stores struct {
	accounts    accounts.Store
	idempotency idempotency.Store
	dbHealth    func(context.Context) error
	close       func()
}

// openStores uses Postgres for both stores when a DSN is configured and JSON files otherwise.
func openStores(ctx context.Context, cfg *config.AppConfig) (*stores, error) {
	if cfg.Service.PostgresDSN == "" {
		acct, err := accounts.NewFileStore(cfg.Service.AccountStorePath)
		if err != nil {
			return nil, fmt.Errorf("account store: %w", err)
		}
		idem, err := idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
		if err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		return &stores{accounts: acct, idempotency: idem, close: func() {}}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Service.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	acct, err := accounts.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	idem, err := idempotency.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{accounts: acct, idempotency: idem, dbHealth: pool.Ping, close: pool.Close}, nil
}

func run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	node, err := chain.DialNode(ctx, chain.RPCNodeConfig{
		RPCURL:  cfg.Chain.RPCURL,
		Timeout: cfg.Chain.RPCTimeout,
	})
	if err != nil {
		return err
	}
	defer node.Close()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	reg := metrics.New()
	// One nonce manager for every sending account, so a shared distributor/minter key is serialized too.
	nonces := chain.NewNonceManager(node)
	poller := chain.NewPoller(node, chain.PollerConfig{
		Interval:    cfg.Chain.PollInterval,
		MaxAttempts: cfg.Chain.MaxAttempts,
	}, logger.Named("poller"))

	distributeTx, err := chain.NewTransactor(node, chain.TransactorConfig{
		From:     cfg.Chain.Distributor,
		Nonces:   nonces,
		Poller:   poller,
		Observer: reg,
	}, logger.Named("distributor"))
	if err != nil {
		return err
	}
	mintTx, err := chain.NewTransactor(node, chain.TransactorConfig{
		From:     cfg.Chain.Minter,
		Nonces:   nonces,
		Poller:   poller,
		Observer: reg,
	}, logger.Named("minter"))
	if err != nil {
		return err
	}

	guard := chain.NewKeyedMutex()
	reader, err := medals.NewReader(node, cfg.Chain.MedalContract, logger.Named("medals"))
	if err != nil {
		return err
	}
	distributor, err := medals.NewDistributor(node, distributeTx, medals.DistributorConfig{
		Contract: cfg.Chain.MedalContract,
		GasLimit: cfg.Chain.DistributeGasLimit,
		Guard:    guard,
		Accounts: st.accounts,
	}, logger.Named("medals"))
	if err != nil {
		return err
	}
	minter, err := nft.NewMinter(node, mintTx, nft.MinterConfig{
		Contract: cfg.Chain.NftContract,
		GasLimit: cfg.Chain.MintGasLimit,
		Accounts: st.accounts,
	}, logger.Named("nft"))
	if err != nil {
		return err
	}
	query, err := nft.NewQueryEngine(node, st.accounts, nft.QueryConfig{
		Contract:       cfg.Chain.NftContract,
		ImageServerURL: cfg.Service.ImageServerURL,
		MaxSupply:      cfg.Chain.NftMaxSupply,
	}, logger.Named("nft"))
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg, server.Deps{
		Node:        node,
		Distributor: distributor,
		Medals:      reader,
		Minter:      minter,
		NFTs:        query,
		Accounts:    st.accounts,
		Idempotency: st.idempotency,
		Metrics:     reg,
		DBHealth:    st.dbHealth,
		Log:         logger.Named("http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Service.SyncInterval > 0 {
		scheduler := medals.NewScheduler(reader, st.accounts, medals.SchedulerConfig{
			Interval: cfg.Service.SyncInterval,
			Guard:    guard,
			Observer: reg,
		}, logger.Named("sync"))
		g.Go(func() error { return scheduler.Run(gctx) })
	} else {
		logger.Info("medal sync disabled")
	}

	return g.Wait()
}
