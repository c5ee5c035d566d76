package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prospectly/assignment-engine/internal/config"
	"github.com/prospectly/assignment-engine/internal/crm"
	"github.com/prospectly/assignment-engine/internal/enrich"
	"github.com/prospectly/assignment-engine/internal/gate"
	"github.com/prospectly/assignment-engine/internal/handler"
	"github.com/prospectly/assignment-engine/internal/infra/postgresql"
	"github.com/prospectly/assignment-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/prospectly/assignment-engine/internal/infra/redis"
	"github.com/prospectly/assignment-engine/internal/observability"
	"github.com/prospectly/assignment-engine/internal/outreach"
	"github.com/prospectly/assignment-engine/internal/repository"
	"github.com/prospectly/assignment-engine/internal/selector"
	"github.com/prospectly/assignment-engine/internal/service"
	"github.com/prospectly/assignment-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	batchRepo := repository.NewGormBatchRepo(db)
	contactRepo := repository.NewGormContactRepo(db)
	resultRepo := repository.NewGormResultRepo(db)
	settingsRepo := repository.NewGormSettingsRepo(db)
	channelRepo := repository.NewGormChannelRepo(db)
	companyRepo := repository.NewGormCompanyRepo(db)
	suppressionRepo := repository.NewGormSuppressionRepo(db)
	candidateRepo := repository.NewGormCandidateSourceRepo(db)

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.EnrollRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	outreachClient, err := outreach.NewRestyClient(cfg.OutreachAPIURL, cfg.OutreachAPIKey, logger)
	if err != nil {
		logger.Fatal("outreach client initialization failed", zap.Error(err))
	}

	crmClient, err := crm.NewRestyClient(cfg.CRMAPIURL, cfg.CRMAPIKey, logger)
	if err != nil {
		logger.Fatal("crm client initialization failed", zap.Error(err))
	}

	generator, err := enrich.NewChatGenerator(cfg.TextGenAPIURL, cfg.TextGenAPIKey, cfg.TextGenModel, logger)
	if err != nil {
		logger.Fatal("text generator initialization failed", zap.Error(err))
	}

	candidateSelector, err := selector.NewSelector(candidateRepo, channelRepo, logger)
	if err != nil {
		logger.Fatal("selector initialization failed", zap.Error(err))
	}

	eligibilityGate, err := gate.NewGate(crmClient, suppressionRepo, companyRepo, outreachClient, metrics, logger)
	if err != nil {
		logger.Fatal("eligibility gate initialization failed", zap.Error(err))
	}

	orchestrator, err := service.NewOrchestrator(
		batchRepo,
		contactRepo,
		resultRepo,
		settingsRepo,
		candidateSelector,
		eligibilityGate,
		generator,
		outreachClient,
		limiter,
		cfg.ChunkSize,
		time.Duration(cfg.BreakerCooldownHours)*time.Hour,
		logger,
	)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}
	orchestrator.SetMetrics(metrics)

	scheduler, err := service.NewScheduler(orchestrator, time.Duration(cfg.RunIntervalSec)*time.Second, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "assignment-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterBatchRoutes(app, batchRepo, resultRepo); err != nil {
		logger.Fatal("batch routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterRunRoutes(app, orchestrator); err != nil {
		logger.Fatal("run routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterSettingsRoutes(app, settingsRepo); err != nil {
		logger.Fatal("settings routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterSuppressionRoutes(app, suppressionRepo); err != nil {
		logger.Fatal("suppression routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("assignment-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited with error", zap.Error(err))
	}
}
