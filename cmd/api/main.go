package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-monitor/internal/api/http"
	"github.com/spec-kit/sla-monitor/internal/api/http/handlers"
	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/cache"
	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/detector"
	"github.com/spec-kit/sla-monitor/internal/escalation"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/metrics"
	"github.com/spec-kit/sla-monitor/internal/notify"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/persistence"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/sla"
	"github.com/spec-kit/sla-monitor/internal/source"
	"github.com/spec-kit/sla-monitor/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	tuning := config.DefaultTuning()
	if cfg.Engine.TuningPath != "" {
		tuning, err = config.LoadTuning(cfg.Engine.TuningPath)
		if err != nil {
			logger.Fatal("failed to load tuning file", zap.Error(err))
		}
	}
	if err := tuning.Validate(); err != nil {
		logger.Fatal("invalid tuning", zap.Error(err))
	}

	calendar, err := sla.NewBusinessCalendar(tuning.BusinessHours)
	if err != nil {
		logger.Fatal("invalid business calendar", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.PoolHandle() != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var cacheStore cache.Store
	if redis.Client != nil {
		cacheStore = cache.NewRedisStore(redis.Client)
	} else {
		cacheStore = cache.NewMemoryStore()
	}

	var breachRepo repository.BreachRepository
	if pool := pg.PoolHandle(); pool != nil {
		breachRepo = repository.NewBreachRepository(pool)
	} else {
		breachRepo = repository.NewMemoryBreachRepository()
	}

	remote := source.NewClient(cfg.Remote, logger)
	evaluator := sla.NewEvaluator(calendar, tuning.RiskThresholds)
	policyStore := policy.NewStore(remote, cacheStore, cfg.Engine.PolicyTTL(), logger)

	det := detector.New(detector.Dependencies{
		Policies:    policyStore,
		Tickets:     remote,
		Evaluator:   evaluator,
		Calendar:    calendar,
		StatusCache: cacheStore,
		StatusTTL:   cfg.Engine.StatusTTL(),
		Tuning:      tuning,
		Window:      cfg.Engine.PredictionWindow(),
		Workers:     cfg.Engine.SweepWorkers,
		Logger:      logger,
	})

	slackNotifier := notify.NewSlackNotifier(cfg.Slack, logger)
	sink := notify.NewCompositeSink(remote, slackNotifier)

	escalations := escalation.NewManager(escalation.Options{
		Sink:          sink,
		Users:         remote,
		Recorder:      breachRepo,
		TicketBaseURL: cfg.Remote.BaseURL,
		Logger:        logger,
	})

	bus := events.NewInMemoryDispatcher()
	for _, eventType := range events.AllTypes() {
		bus.Subscribe(eventType, events.LogHandler(logger))
	}
	policyStore.PublishRefreshes(bus)
	engineMetrics := observability.NewMetrics()

	sweeper := worker.NewSweeper(worker.Dependencies{
		Policies:         policyStore,
		Detector:         det,
		Escalations:      escalations,
		Breaches:         breachRepo,
		Events:           bus,
		Metrics:          engineMetrics,
		PredictionWindow: cfg.Engine.PredictionWindow(),
		Logger:           logger,
	})
	if err := sweeper.Prime(ctx); err != nil {
		logger.Warn("failed to prime from audit trail", zap.Error(err))
	}

	stopSweeper := make(chan struct{})
	go sweeper.Start(cfg.Engine.SweepInterval(), stopSweeper)

	calculator := metrics.NewCalculator(remote, policyStore, evaluator, cacheStore, cfg.Engine.MetricsTTL(), logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokens, cfg.Auth.APIKeyHash)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, engineMetrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(tokens, cfg.Auth.APIKeyHash),
		SLA:            handlers.NewSLAHandler(det, sweeper, policyStore),
		Breaches:       handlers.NewBreachHandler(breachRepo, escalations, remote, policyStore),
		Metrics:        handlers.NewMetricsHandler(calculator, engineMetrics, det, tuning.OverloadRatio),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	close(stopSweeper)
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
