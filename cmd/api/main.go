package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/database"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
	"github.com/noah-isme/gema-grading-api/internal/router"
	"github.com/noah-isme/gema-grading-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		AppName: cfg.AppName,
		Env:     cfg.AppEnv,
	})

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled; score summaries are not cached")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	scoreRepo := repository.NewQuestionScoreRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	events := service.NewGradingEventStream(redisClient, cfg.EventsChannel, natsConn, logger)
	events.Start(rootCtx)

	activityService := service.NewActivityService(activityRepo, logger)
	ledger := service.NewScoreLedger(scoreRepo, logger)
	aggregator := service.NewSubmissionAggregator(submissionRepo, redisClient, events, cfg.SystemGraderID, logger)
	scoringConfigService := service.NewScoringConfigService(questionRepo, validate, activityService, logger)
	gradingService := service.NewGradingService(service.GradingServiceDeps{
		Submissions: submissionRepo,
		Answers:     answerRepo,
		Questions:   questionRepo,
		Scores:      scoreRepo,
		Ledger:      ledger,
		Aggregator:  aggregator,
		Activity:    activityService,
		Events:      events,
		Cache:       redisClient,
		Validator:   validate,
	}, service.GradingServiceOptions{
		BulkConcurrency: cfg.BulkConcurrency,
		SummaryCacheTTL: cfg.SummaryCacheTTL,
		SystemGraderID:  cfg.SystemGraderID,
		FuzzyThreshold:  cfg.FuzzyThreshold,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler:       handler.NewGradingHandler(gradingService, events, logger),
		ScoringConfigHandler: handler.NewScoringConfigHandler(scoringConfigService, logger),
		ActivityHandler:      handler.NewActivityHandler(activityService, logger),
		Health: handler.HealthDependencies{
			DB:    db,
			Redis: redisClient,
			NATS:  natsConn,
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
		ExposeMetrics: true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Str("driver", cfg.DatabaseDriver).Msg("grading api started")
	waitForShutdown(rootCtx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
