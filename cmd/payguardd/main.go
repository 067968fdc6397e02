package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"payguard/audit"
	"payguard/config"
	"payguard/gateway"
	"payguard/native/brand"
	"payguard/native/execution"
	"payguard/native/intel"
	"payguard/native/policy"
	"payguard/native/risk"
	"payguard/observability/logging"
	"payguard/observability/otel"
	"payguard/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "path to the payguardd configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.SetupWithOptions("payguardd", cfg.Service.Env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := otel.Init(ctx, "payguardd", cfg.Service.Env, otel.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	ledger, err := audit.Open(cfg.Audit.DSN)
	if err != nil {
		log.Fatalf("open audit ledger: %v", err)
	}
	defer ledger.Close()

	intelDB, err := intel.Open(cfg.Intel.DSN)
	if err != nil {
		log.Fatalf("open intel database: %v", err)
	}
	defer func() {
		if db, err := intelDB.DB(); err == nil {
			db.Close()
		}
	}()

	thresholds := cfg.Risk.Thresholds()
	riskPolicy := risk.DefaultPolicy()
	riskPolicy.MinTrustedTxns = thresholds.MinTrustedTxns
	riskPolicy.MinTrustedAge = thresholds.MinTrustedAge
	riskPolicy.WatchlistRefundRate = thresholds.MaxRefundRateTrusted
	riskPolicy.BlockRefundRate = thresholds.MaxRefundRateWatchlist

	intelStore, err := intel.NewStore(intelDB, riskPolicy)
	if err != nil {
		log.Fatalf("build intel store: %v", err)
	}
	intelStore.SetEmitter(ledger)

	txnDB, err := storage.NewLevelDB(filepath.Join(cfg.Execution.DataDir, "transactions"))
	if err != nil {
		log.Fatalf("open transaction store: %v", err)
	}
	defer txnDB.Close()

	registry, err := brand.LoadRegistry(cfg.Brand.RegistryPath)
	if err != nil {
		log.Fatalf("load brand registry: %v", err)
	}
	detector := brand.NewDetector(registry)

	limits, err := cfg.Policy.Limits()
	if err != nil {
		log.Fatalf("parse policy limits: %v", err)
	}
	policyEngine := policy.New(policy.Params{
		DailyLimit:            limits.DailyLimit,
		VelocityWindow:        limits.VelocityWindow,
		VelocityMax:           limits.VelocityMax,
		NewDeviceCap:          limits.NewDeviceCap,
		MinMerchantReputation: limits.MinMerchantReputation,
		FraudReportThreshold:  limits.FraudReportThreshold,
		NewPayeeHighValue:     limits.NewPayeeHighValue,
		TrustScoreFloor:       limits.TrustScoreFloor,
	}, detector)
	policyEngine.SetEmitter(ledger)

	txnStore := execution.NewStore(txnDB)
	router := execution.NewRouter(txnStore)
	router.SetEmitter(ledger)
	engine := execution.NewEngine(txnStore, execution.NewSimulatedSettler(cfg.Execution.FailureRate), intelStore, cfg.Execution.IdempotencyTTL())
	engine.SetEmitter(ledger)

	processor, err := gateway.NewProcessor(gateway.Config{
		Policy:            policyEngine,
		Router:            router,
		Engine:            engine,
		Intel:             intelStore,
		Recorder:          intelStore,
		Detector:          detector,
		Users:             gateway.NewMemoryDirectory(),
		DailyLimit:        limits.DailyLimit,
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		Burst:             cfg.Gateway.Burst,
	})
	if err != nil {
		log.Fatalf("build intent processor: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Service.ListenAddress,
		Handler:           gateway.NewOpsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("ops server listening", "addr", cfg.Service.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	if cfg.Audit.ArchiveEnabled {
		archiver, err := audit.NewArchiver(ledger, cfg.Audit.ArchiveDir)
		if err != nil {
			log.Fatalf("build audit archiver: %v", err)
		}
		go runArchiver(ctx, archiver, cfg.Audit.ArchiveInterval())
	}

	go func() {
		err := runIntake(ctx, processor, os.Stdin, os.Stdout)
		switch {
		case err == nil:
			slog.Info("intent intake closed")
		case errors.Is(err, context.Canceled):
		default:
			slog.Error("intent intake stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("shutting down payguardd")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

// runArchiver exports one audit window per tick. A failed export is retried
// as part of the next window so rows are never skipped.
func runArchiver(ctx context.Context, archiver *audit.Archiver, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	windowStart := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case windowEnd := <-ticker.C:
			result, err := archiver.Archive(ctx, windowStart, windowEnd)
			if err != nil {
				slog.Error("audit archive failed", "error", err)
				continue
			}
			windowStart = windowEnd
			slog.Info("audit window archived", "rows", result.Rows, "csv", result.CSVPath, "parquet", result.ParquetPath)
		}
	}
}
