package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"github.com/terrylica/gapless-crypto-clickhouse-sub001/config"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/adapters/binancecdn"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/adapters/binanceclient"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/adapters/clickhouse"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/adapters/logger"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/adapters/sqlite"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/app"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/domain"
	"github.com/terrylica/gapless-crypto-clickhouse-sub001/internal/ingest"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.ParseLevel(cfg.LogLevel))
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// Cancel in-flight work on SIGINT/SIGTERM; batch writes are atomic, so
	// a canceled run never leaves a partial chunk behind.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Ingest Ledger (SQLite Adapter)
	ledger, err := sqlite.NewLedger(sqlite.Config{
		DBPath: cfg.LedgerPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ingest ledger")
		log.Fatalf("FATAL: Failed to initialize ingest ledger: %v", err) // Also log to stderr
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ingest ledger")
		}
	}()

	// 4. Initialize ClickHouse Sink
	sink, err := clickhouse.NewSink(clickhouse.Config{
		Addr:        cfg.ClickHouseAddr,
		Database:    cfg.ClickHouseDatabase,
		Table:       cfg.ClickHouseTable,
		Username:    cfg.ClickHouseUser,
		Password:    cfg.ClickHousePassword,
		DialTimeout: cfg.ClickHouseDialTimeout,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ClickHouse sink")
		log.Fatalf("FATAL: Failed to initialize ClickHouse sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ClickHouse sink")
		}
	}()
	if err := sink.EnsureSchema(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to ensure ClickHouse schema")
		log.Fatalf("FATAL: Failed to ensure ClickHouse schema: %v", err)
	}

	// 5. Initialize Sources (Bulk CDN + REST Adapters)
	cdnClient, err := binancecdn.New(binancecdn.Config{
		BaseURL:         cfg.CDNBaseURL,
		Timeout:         cfg.CDNTimeout,
		VerifyChecksums: cfg.VerifyChecksums,
		Logger:          appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize bulk CDN client")
		log.Fatalf("FATAL: Failed to initialize bulk CDN client: %v", err)
	}
	restClient, err := binanceclient.New(binanceclient.Config{
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		Logger:            appLogger,
		RequestsPerSecond: cfg.RestRequestsPerSecond,
		Burst:             cfg.RestBurst,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance REST client")
		log.Fatalf("FATAL: Failed to initialize Binance REST client: %v", err)
	}

	// 6. Initialize Ingest Components
	monthFetcher, err := ingest.NewMonthFetcher(cdnClient, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize month fetcher")
		log.Fatalf("FATAL: Failed to initialize month fetcher: %v", err)
	}
	registry := domain.NewTimeframeRegistry()
	backfiller, err := ingest.NewBackfiller(restClient, registry, appLogger, ingest.BackfillConfig{
		MaxCandlesPerRequest: cfg.MaxCandlesPerRequest,
		Workers:              cfg.BackfillWorkers,
		MaxAttempts:          cfg.BackfillMaxAttempts,
		BackoffMin:           cfg.BackfillBackoffMin,
		BackoffMax:           cfg.BackfillBackoffMax,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize backfiller")
		log.Fatalf("FATAL: Failed to initialize backfiller: %v", err)
	}

	// 7. Initialize Application Service
	service, err := app.NewIngestionService(app.Config{
		StartMonth: cfg.StartMonth,
		EndMonth:   cfg.EndMonth,
		KeyWorkers: cfg.KeyWorkers,
	}, appLogger, registry, monthFetcher, backfiller, sink, ledger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ingestion service")
		log.Fatalf("FATAL: Failed to initialize ingestion service: %v", err)
	}

	// 8. Run
	instrument := domain.InstrumentType(cfg.Instrument)
	var keys []app.Key
	for _, symbol := range cfg.Symbols {
		for _, timeframe := range cfg.Timeframes {
			keys = append(keys, app.Key{Symbol: symbol, Timeframe: timeframe, Instrument: instrument})
		}
	}

	reports, err := service.RunAll(ctx, keys)
	if err != nil {
		appLogger.Error(ctx, err, "Ingestion exited with error")
		log.Fatalf("FATAL: Ingestion exited with error: %v", err)
	}

	failed := 0
	for _, report := range reports {
		if report.Status == app.StateFailed {
			failed++
		}
	}
	if failed > 0 {
		appLogger.Warn(ctx, "Some keys failed to converge", map[string]interface{}{
			"failed": failed, "total": len(reports),
		})
		os.Exit(1)
	}
	appLogger.Info(ctx, "Ingestion finished", map[string]interface{}{"keys": len(reports)})
}
