package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/homeledger/homeledger/internal/app"
	"github.com/homeledger/homeledger/internal/bill"
	"github.com/homeledger/homeledger/internal/invoice"
	"github.com/homeledger/homeledger/internal/ledger"
	"github.com/homeledger/homeledger/internal/masterdata"
	"github.com/homeledger/homeledger/internal/observability"
	"github.com/homeledger/homeledger/internal/payment"
	"github.com/homeledger/homeledger/internal/platform/cache"
	"github.com/homeledger/homeledger/internal/platform/db"
	"github.com/homeledger/homeledger/internal/reconcile"
	"github.com/homeledger/homeledger/internal/shared"
	"github.com/homeledger/homeledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Close operations serialize on redis; refuse to start without it.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	closeMutex := shared.NewMutex(redisClient, cfg.CloseLockTTL)
	metrics := observability.NewMetrics()

	masterdataRepo := masterdata.NewRepository(dbpool)
	masterdataService := masterdata.NewService(masterdataRepo)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, cfg.CurrencyCode)

	billRepo := bill.NewRepository(dbpool)
	billService := bill.NewService(billRepo, logger)
	billHandler := bill.NewHandler(logger, billService)

	invoiceRepo := invoice.NewRepository(dbpool)
	invoiceService := invoice.NewService(invoiceRepo, masterdataService, closeMutex, auditLogger, logger)
	invoiceHandler := invoice.NewHandler(logger, invoiceService, metrics)

	paymentRepo := payment.NewRepository(dbpool)
	paymentService := payment.NewService(paymentRepo, ledgerService, auditLogger, logger)
	paymentHandler := payment.NewHandler(logger, paymentService, metrics)

	reconcileRepo := reconcile.NewRepository(dbpool)
	reconcileService := reconcile.NewService(reconcileRepo, masterdataService, closeMutex, auditLogger, logger)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Pool:              dbpool,
		MasterDataHandler: masterdataHandler,
		LedgerHandler:     ledgerHandler,
		BillHandler:       billHandler,
		InvoiceHandler:    invoiceHandler,
		PaymentHandler:    paymentHandler,
		ReconcileHandler:  reconcileHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
