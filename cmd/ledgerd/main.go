package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/accounts"
	"github.com/jmerrifield20/chainledger/internal/api/handler"
	"github.com/jmerrifield20/chainledger/internal/audit"
	"github.com/jmerrifield20/chainledger/internal/config"
	"github.com/jmerrifield20/chainledger/internal/journal"
	"github.com/jmerrifield20/chainledger/internal/ledger"
	"github.com/jmerrifield20/chainledger/internal/reports"
	"github.com/jmerrifield20/chainledger/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(config.New(), logger)
	if err != nil {
		return err
	}

	signer, err := cfg.Signer(logger)
	if err != nil {
		return err
	}

	startCtx := context.Background()

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		st   store.Store
		repo accounts.Repository
	)
	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		db, err := pgxpool.New(startCtx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(startCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		st = store.NewPostgresStore(db, logger)
		repo = accounts.NewPostgresRepository(db)
	default:
		logger.Warn("using the in-memory backend; the ledger is lost on restart")
		st = store.NewMemoryStore()
		repo = accounts.NewMemoryRepository()
	}

	// ── Chart of accounts ────────────────────────────────────────────────────
	chart := accounts.NewChart(repo, logger)
	if err := chart.Load(startCtx); err != nil {
		return fmt.Errorf("load chart of accounts: %w", err)
	}
	if cfg.Seed.DefaultChart {
		n, err := chart.Seed(startCtx, accounts.DefaultChart())
		if err != nil {
			return fmt.Errorf("seed chart of accounts: %w", err)
		}
		if n > 0 {
			logger.Info("seeded default chart of accounts", zap.Int("created", n))
		}
	}

	// ── Report cache ─────────────────────────────────────────────────────────
	var reportCache reports.Cache
	if cfg.Redis.URL != "" {
		client, err := reports.DialRedis(startCtx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, reports will not be cached", zap.Error(err))
		} else {
			defer client.Close()
			reportCache = reports.NewRedisCache(client, cfg.Reports.CacheTTL)
			logger.Info("report cache enabled", zap.Duration("ttl", cfg.Reports.CacheTTL))
		}
	}

	// ── Ledger service ───────────────────────────────────────────────────────
	svc := ledger.NewService(st, chart, signer, reportCache, logger)
	svc.SetNumbering(journal.Numbering{StartMonth: cfg.Fiscal.YearStartMonth})
	svc.SetPostTimeout(cfg.Posting.Timeout)
	svc.SetMaxRetries(cfg.Posting.MaxRetries)
	svc.SetMetricsRecorders(handler.RecordPost, handler.RecordVoid, handler.RecordChainRace, handler.RecordVerification)

	rep, err := svc.Recover(startCtx)
	if err != nil {
		return fmt.Errorf("recover chain tail: %w", err)
	}
	if rep.Advanced || rep.Orphaned > 0 {
		logger.Warn("chain tail repaired at startup",
			zap.Int64("tail_sequence", rep.Tail.Sequence),
			zap.Int64("max_sequence", rep.MaxSequence),
			zap.Int64("orphaned", rep.Orphaned),
		)
	}

	res, err := svc.VerifyChain(startCtx)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	if res.IsValid {
		logger.Info("ledger chain verified",
			zap.Int64("entries", res.TotalEntries),
			zap.String("tail", res.Tail.Hash),
		)
	}

	stop := make(chan struct{})

	// ── Handlers ─────────────────────────────────────────────────────────────
	entryHandler := handler.NewEntryHandler(svc, logger)
	accountHandler := handler.NewAccountHandler(svc, logger)
	reportHandler := handler.NewReportHandler(svc, logger)
	ledgerHandler := handler.NewLedgerHandler(svc, logger)

	// ── Periodic audit ───────────────────────────────────────────────────────
	if cfg.Audit.Interval > 0 {
		auditor := audit.New(svc, audit.Config{Interval: cfg.Audit.Interval}, logger)
		auditor.SetMetricsRecord(handler.RecordAudit)
		ledgerHandler.SetIntegrityReporter(auditor)
		go auditor.Start(stop)
		logger.Info("periodic chain audit enabled", zap.Duration("interval", cfg.Audit.Interval))
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", handler.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RequestIDHeader, "Retry-After"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	maxBody := cfg.Server.MaxBodyBytes
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		limiter := handler.NewRateLimiter(handler.RateLimitConfig{
			ReadRPS:  rps,
			WriteRPS: cfg.Server.WriteRateLimitRPS,
		}, stop)
		router.Use(limiter.Middleware())
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	accountHandler.Register(v1)
	entryHandler.Register(v1)
	reportHandler.Register(v1)
	ledgerHandler.Register(v1)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ledgerd HTTP listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("backend", cfg.Ledger.Backend),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down ledgerd...")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ledgerd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", handler.RequestIDFrom(c)),
		)
	}
}
