package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ogurasousui/revenue-claims/internal/adapters/cache/rediscache"
	"github.com/ogurasousui/revenue-claims/internal/adapters/grpc/handler"
	"github.com/ogurasousui/revenue-claims/internal/adapters/httpapi"
	"github.com/ogurasousui/revenue-claims/internal/adapters/repository/postgres"
	"github.com/ogurasousui/revenue-claims/internal/core/access"
	"github.com/ogurasousui/revenue-claims/internal/core/claim"
	"github.com/ogurasousui/revenue-claims/internal/core/report"
	"github.com/ogurasousui/revenue-claims/internal/core/revenue"
	"github.com/ogurasousui/revenue-claims/internal/platform/cache"
	"github.com/ogurasousui/revenue-claims/internal/platform/config"
	pg "github.com/ogurasousui/revenue-claims/internal/platform/db/postgres"
	"github.com/ogurasousui/revenue-claims/internal/platform/logging"
	"github.com/ogurasousui/revenue-claims/internal/platform/server"
	"github.com/ogurasousui/revenue-claims/internal/platform/telemetry"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env は任意
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Error("failed to initialize tracer provider", zap.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	dbPool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", zap.Error(err))
		return err
	}
	defer dbPool.Close()

	txManager := pg.NewTransactionManager(dbPool)
	claimRepo := postgres.NewClaimRepository(dbPool)
	txnRepo := postgres.NewRevenueTransactionRepository(dbPool)
	paymentRepo := postgres.NewPaymentRepository(dbPool)
	reportRepo := postgres.NewWorkReportRepository(dbPool)
	directoryRepo := postgres.NewDirectoryRepository(dbPool)

	scopeOpts := []access.Option{
		access.WithMaxDepth(cfg.Access.MaxHierarchyDepth),
		access.WithLogger(logger),
	}
	if cfg.Redis.Enabled() {
		redisClient, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			return err
		}
		defer func() { _ = redisClient.Close() }()
		scopeOpts = append(scopeOpts, access.WithCache(rediscache.NewDownlineCache(redisClient, cfg.Redis.ScopeCacheTTL)))
		logger.Info("downline cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.ScopeCacheTTL))
	}

	claimSvc := claim.NewService(claim.Dependencies{
		Claims:         claimRepo,
		Transactions:   txnRepo,
		Reports:        reportRepo,
		Directory:      directoryRepo,
		Scopes:         access.NewResolver(directoryRepo, scopeOpts...),
		Resolver:       revenue.NewResolver(txnRepo, paymentRepo, paymentRepo, nil, txManager),
		Reconciler:     report.NewAggregator(reportRepo, nil, txManager, logger),
		TX:             txManager,
		Logger:         logger,
		TracerProvider: tp,
	})

	runners := []namedRunner{{
		name: "gRPC",
		addr: cfg.Server.ListenAddr,
		srv:  server.New(cfg.Server.ListenAddr, handler.NewClaimsGrpcHandler(claimSvc, logger), logger),
	}}
	if cfg.HTTP.ListenAddr != "" {
		runners = append(runners, namedRunner{
			name: "HTTP",
			addr: cfg.HTTP.ListenAddr,
			srv:  httpapi.NewServer(cfg.HTTP.ListenAddr, httpapi.NewRouter(claimSvc, logger)),
		})
	} else {
		logger.Info("HTTP server disabled")
	}

	return runAll(ctx, stop, logger, runners)
}

const telemetryShutdownTimeout = 5 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

type namedRunner struct {
	name string
	addr string
	srv  runner
}

// runAll は全サーバーを起動し、すべてが停止するまで待ちます。1 つでも失敗すると残りを停止させます。
func runAll(ctx context.Context, stop context.CancelFunc, logger *zap.Logger, runners []namedRunner) error {
	errCh := make(chan error, len(runners))
	for _, r := range runners {
		go func(r namedRunner) {
			logger.Info(r.name+" server listening", zap.String("addr", r.addr))
			errCh <- r.srv.Run(ctx)
		}(r)
	}

	var runErr error
	for range runners {
		if err := <-errCh; err != nil {
			logger.Error("server stopped with error", zap.Error(err))
			runErr = errors.Join(runErr, err)
			stop()
		}
	}
	logger.Info("servers stopped")
	return runErr
}
