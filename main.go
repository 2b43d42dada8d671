package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"water-billing/internal/audit"
	"water-billing/internal/auth"
	billingapp "water-billing/internal/billing/application"
	billingrepo "water-billing/internal/billing/infrastructure/postgres"
	billinginterfaces "water-billing/internal/billing/interfaces"
	"water-billing/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	decimal.MarshalJSONWithoutQuotes = true

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	pipelineCfg, err := billingapp.LoadConfig()
	if err != nil {
		logger.Fatal("billing pipeline config error", zap.Error(err))
	}
	stages, err := billingrepo.StagesFromConfig(pipelineCfg)
	if err != nil {
		logger.Fatal("billing stages error", zap.Error(err))
	}

	stagingRepo := billingrepo.NewStagingRepository(billingrepo.WithInsertBatchSize(pipelineCfg.InsertBatchSize))
	pipeline, err := billingapp.NewPipelineService(
		db,
		stagingRepo,
		billingrepo.NewUnitRepository(),
		billingrepo.NewAdvisoryLocker(pipelineCfg.LockNamespace),
		stages,
		billingapp.WithLogger(logger.Named("pipeline")),
		billingapp.WithUnitPlaceholder(pipelineCfg.UnitPlaceholder),
	)
	if err != nil {
		logger.Fatal("billing pipeline error", zap.Error(err))
	}
	queries, err := billingapp.NewQueryService(db, stagingRepo, billingrepo.NewHistoryQuery())
	if err != nil {
		logger.Fatal("billing queries error", zap.Error(err))
	}
	billingHandler, err := billinginterfaces.NewBillingHandler(pipeline, queries, auditRepo, logger.Named("http"))
	if err != nil {
		logger.Fatal("billing handler error", zap.Error(err))
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, logger.Named("auth"))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/billing/process-readings", billingHandler)
	mux.Handle("/api/v1/billing/latest-readings", billingHandler)
	mux.Handle("/api/v1/billing/staging/", billingHandler)
	mux.Handle("/api/v1/billing/units/", billingHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("access")),
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		ReadTimeout:       cfg.HTTPReadTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
	logger.Info("http server stopped")
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	HTTPReadTimeout time.Duration
	DBMaxOpenConns  int
	JWTSecret       string
	LogLevel        string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		HTTPReadTimeout: getenvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		DBMaxOpenConns:  getenvIntDefault("DB_MAX_OPEN_CONNS", 20),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
	}
	if cfg.DatabaseURL == "" {
		exitConfig("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		exitConfig("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func exitConfig(msg string) {
	_, _ = os.Stderr.WriteString(msg + "\n")
	os.Exit(1)
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
