package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/config"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/marketplace"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/notifications"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/notifications/websocket"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/reports/dashboard"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/reports/export"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/scoring"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/storage/sqlstore"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/verification"
	"carbon-scribe/blue-carbon/blue-carbon-backend/pkg/pdf"
)

// API holds the wired application components
type API struct {
	Config      *config.Config
	Auth        *auth.Service
	Registry    *projects.Registry
	Ledger      *ledger.Ledger
	Workflow    *verification.Workflow
	Sweeper     *verification.Sweeper
	Marketplace *marketplace.Service
	Dashboard   *dashboard.Aggregator
	Hub         *websocket.Manager

	logger  *zap.Logger
	closers []func() error
}

// NewLogger builds a zap logger from the logging configuration
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to parse log level: %w", err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Setup builds every component selected by cfg. Callers must Close the result.
func Setup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*API, error) {
	api := &API{Config: cfg, logger: logger}
	if err := api.setup(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	return api, nil
}

func (a *API) setup(ctx context.Context) error {
	cfg := a.Config

	projectRepo, creditRepo, err := a.openStores(cfg.Database)
	if err != nil {
		return err
	}
	a.Registry = projects.NewRegistry(projectRepo, a.logger)

	splitter, err := revenue.NewSplitter(revenue.PolicyFromConfig(cfg.Verification.RevenueShares))
	if err != nil {
		return fmt.Errorf("failed to create revenue splitter: %w", err)
	}
	a.Ledger = ledger.NewLedger(creditRepo, a.Registry, splitter, a.logger)

	validator, err := scoring.NewValidatorFromConfig(cfg.Scoring, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	scorer := scoring.NewService(validator, cfg.Verification.SequestrationFactor, cfg.Scoring.Timeout, a.logger)

	sink := notifications.NewMultiSink(a.logger, notifications.NewLogSink(a.logger))
	awsSinks, err := notifications.NewAWSSinks(ctx, cfg.Sinks, a.logger)
	if err != nil {
		return err
	}
	for _, s := range awsSinks {
		sink.Add(s)
	}
	if cfg.Sinks.WebSocket {
		a.Hub = websocket.NewManager(a.logger)
		sink.Add(a.Hub)
		a.closers = append(a.closers, func() error {
			a.Hub.Close()
			return nil
		})
	}

	cache := dashboard.NewAggregateCache(cfg.Dashboard.CacheTTL)
	a.closers = append(a.closers, func() error {
		cache.Stop()
		return nil
	})
	a.Dashboard = dashboard.NewAggregator(a.Registry, a.Ledger, cache, a.logger)
	sink.Add(a.Dashboard)

	a.Workflow = verification.NewWorkflow(a.Registry, scorer, a.Ledger, sink, verification.Config{
		ApprovalThreshold: cfg.Verification.ApprovalThreshold,
		RevenuePerTon:     revenue.FromFloat(cfg.Verification.RevenuePerTon),
	}, a.logger)
	a.Sweeper = verification.NewSweeper(a.Workflow, verification.SweeperConfig{
		Schedule:      cfg.Sweeper.Schedule,
		BatchSize:     cfg.Sweeper.BatchSize,
		MaxConcurrent: cfg.Sweeper.MaxConcurrent,
	}, a.logger)

	listings, err := a.openListings(cfg.Marketplace)
	if err != nil {
		return err
	}
	a.Marketplace = marketplace.NewService(listings, a.logger)

	a.Auth = auth.NewService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, a.logger)
	if a.Auth.HeaderMode() {
		a.logger.Warn("No JWT secret configured, trusting X-User-ID and X-User-Role headers")
	}
	return nil
}

func (a *API) openStores(cfg config.DatabaseConfig) (projects.Repository, ledger.Repository, error) {
	if cfg.Driver == "memory" {
		return projects.NewMemoryRepository(), ledger.NewMemoryRepository(), nil
	}
	db, err := sqlstore.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.logger.Info("Database connected", zap.String("driver", cfg.Driver))
	return sqlstore.NewProjectStore(db), sqlstore.NewCreditStore(db), nil
}

func (a *API) openListings(cfg config.MarketplaceConfig) (marketplace.Repository, error) {
	if cfg.PostgresDSN == "" {
		return marketplace.NewMemoryRepository(), nil
	}
	db, err := marketplace.OpenPostgres(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access marketplace connection: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)
	return marketplace.NewGormRepository(db), nil
}

// Router builds the HTTP engine
func (a *API) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a.logger), cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	auth.RegisterRoutes(router, auth.NewHandler(a.Auth))

	api := router.Group("/api/v1", a.Auth.Middleware())
	{
		verification.NewHandler(a.Workflow, a.logger).RegisterRoutes(api)
		export.NewHandler(a.Workflow, pdf.NewGenerator(pdf.DefaultOptions()), a.logger).RegisterRoutes(api)
		dashboard.NewHandler(a.Dashboard, a.logger).RegisterRoutes(api)
		marketplace.NewHandler(a.Marketplace, a.logger).RegisterRoutes(api)
		if a.Hub != nil {
			websocket.NewHandler(a.Hub, a.logger).RegisterRoutes(api)
		}
	}
	return router
}

// Close stops background work and releases connections in reverse order of acquisition
func (a *API) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-User-Role")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
