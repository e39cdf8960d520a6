// Package app wires configuration, storage, transports, and the four
// pipeline services into a single container used by the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/planward/planward/internal/collector"
	"github.com/planward/planward/internal/collector/caldav"
	"github.com/planward/planward/internal/collector/openweather"
	"github.com/planward/planward/internal/collector/snapcache"
	"github.com/planward/planward/internal/collector/taskstore"
	"github.com/planward/planward/internal/executor"
	"github.com/planward/planward/internal/executor/telegram"
	"github.com/planward/planward/internal/pipeline"
	"github.com/planward/planward/internal/planner"
	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/internal/planning/infrastructure/persistence"
	"github.com/planward/planward/internal/reviewer"
	"github.com/planward/planward/internal/shared/infrastructure/database/postgres"
	"github.com/planward/planward/internal/shared/infrastructure/database/sqlite"
	"github.com/planward/planward/internal/shared/infrastructure/eventbus"
	"github.com/planward/planward/pkg/config"
	"github.com/planward/planward/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics
	Health  *observability.HealthRegistry

	Tasks   domain.TaskRepository
	Rules   domain.RuleRepository
	Plans   domain.PlanRepository
	Records domain.ExecutionRecordRepository

	Publisher eventbus.Publisher

	Collector *collector.Service
	Planner   *planner.Engine
	Executor  *executor.Service
	Reviewer  *reviewer.Service
	Runner    *pipeline.Runner

	sqliteDB *sql.DB
	pgPool   *pgxpool.Pool
	redis    *redis.Client
	closers  []func()
}

// New loads configuration from the environment and builds the container.
func New(ctx context.Context, logger *slog.Logger) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, logger)
}

// NewWithConfig builds the container from an existing configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = observability.LoggerFromEnv()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
	}

	if err := c.initStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initPublisher(); err != nil {
		c.Close()
		return nil, err
	}
	c.initCollector()
	c.initPlanner()
	c.initExecutor()
	c.initReviewer()
	c.initRunner()

	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	cfg := c.Config

	switch cfg.DatabaseDriver {
	case "sqlite", "":
		db, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		c.sqliteDB = db
		c.closers = append(c.closers, func() { _ = db.Close() })

		c.Tasks = persistence.NewSQLiteTaskRepository(db)
		c.Rules = persistence.NewSQLiteRuleRepository(db)
		c.Plans = persistence.NewSQLitePlanRepository(db)
		c.Records = persistence.NewSQLiteRecordRepository(db)

		c.Health.Register("database", observability.DatabaseHealthChecker(db.PingContext))
		c.Logger.Info("connected to database", "driver", "sqlite", "path", cfg.DatabasePath)

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		c.pgPool = pool
		c.closers = append(c.closers, pool.Close)

		c.Tasks = persistence.NewPostgresTaskRepository(pool)
		c.Rules = persistence.NewPostgresRuleRepository(pool)
		c.Plans = persistence.NewPostgresPlanRepository(pool)
		c.Records = persistence.NewPostgresRecordRepository(pool)

		c.Health.Register("database", observability.DatabaseHealthChecker(pool.Ping))
		c.Logger.Info("connected to database", "driver", "postgres")

	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		c.redis = client
		c.closers = append(c.closers, func() { _ = client.Close() })
		c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	return nil
}

func (c *Container) initPublisher() error {
	cfg := c.Config

	if cfg.RabbitMQURL == "" {
		c.Publisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}

	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, c.Logger)
	if err != nil {
		if cfg.IsDevelopment() {
			c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			c.Publisher = eventbus.NewNoopPublisher(c.Logger)
			return nil
		}
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	c.Publisher = publisher
	c.closers = append(c.closers, func() { _ = publisher.Close() })
	c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(publisher.Ping))
	c.Logger.Info("event publisher initialized", "exchange", eventbus.ExchangeName)
	return nil
}

func (c *Container) initCollector() {
	cfg := c.Config

	var calendarSource collector.CalendarSource
	if cfg.CalDAVURL != "" {
		calendarSource = caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVPath, c.Logger)
	}

	var taskSource collector.TaskSource
	if cfg.TaskStoreURL != "" {
		taskSource = taskstore.NewClient(cfg.TaskStoreURL, cfg.TaskStoreToken)
	}

	var weatherSource collector.WeatherSource
	if cfg.WeatherAPIKey != "" {
		weatherSource = openweather.NewClient(cfg.WeatherURL, cfg.WeatherAPIKey, cfg.Location, nil)
	}

	opts := []collector.Option{
		collector.WithTimeout(cfg.CollectTimeout),
		collector.WithLogger(c.Logger),
		collector.WithMetrics(c.Metrics),
	}
	if c.redis != nil {
		opts = append(opts, collector.WithCache(snapcache.NewRedisCache(c.redis, cfg.SnapshotCacheTTL)))
	}

	c.Collector = collector.NewService(calendarSource, taskSource, weatherSource, opts...)
}

func (c *Container) initPlanner() {
	cfg := c.Config
	c.Planner = planner.NewEngine(planner.Config{
		WorkdayStart:    cfg.WorkdayStart,
		WorkdayEnd:      cfg.WorkdayEnd,
		SlotGap:         cfg.SlotGap,
		ConfidenceFloor: cfg.RuleConfidenceFloor,
	},
		planner.WithLogger(c.Logger),
		planner.WithMetrics(c.Metrics),
	)
}

func (c *Container) initExecutor() {
	cfg := c.Config

	var writer executor.CalendarWriter
	if cfg.CalDAVURL != "" {
		writer = caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVPath, c.Logger)
	}

	var notifier executor.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = telegram.NewNotifier("", cfg.TelegramBotToken, cfg.TelegramChatID, &http.Client{Timeout: cfg.ActionTimeout})
	}

	c.Executor = executor.NewService(executor.Config{
		ActionTimeout: cfg.ActionTimeout,
		Retries:       cfg.ActionRetries,
		Backoff:       cfg.RetryBackoff,
		BackoffMax:    cfg.RetryBackoffMax,
	},
		c.Tasks,
		c.Records,
		writer,
		notifier,
		executor.WithLogger(c.Logger),
		executor.WithMetrics(c.Metrics),
	)
}

func (c *Container) initReviewer() {
	cfg := c.Config
	c.Reviewer = reviewer.NewService(reviewer.Config{
		Lookback:        cfg.ReviewInterval,
		ConfidenceStep:  cfg.ConfidenceStep,
		ProposalMinHits: cfg.RuleProposalMinHits,
	},
		c.Rules,
		c.Records,
		reviewer.WithPublisher(c.Publisher),
		reviewer.WithLogger(c.Logger),
		reviewer.WithMetrics(c.Metrics),
	)
}

func (c *Container) initRunner() {
	cfg := c.Config

	opts := []pipeline.Option{
		pipeline.WithPublisher(c.Publisher),
		pipeline.WithLogger(c.Logger),
		pipeline.WithMetrics(c.Metrics),
	}
	if cfg.TaskStoreURL != "" {
		opts = append(opts, pipeline.WithTaskWriter(taskstore.NewClient(cfg.TaskStoreURL, cfg.TaskStoreToken)))
	}

	c.Runner = pipeline.NewRunner(pipeline.Config{
		CollectInterval: cfg.CollectInterval,
		ReviewInterval:  cfg.ReviewInterval,
		ReviewAtHour:    cfg.ReviewAtHour,
		PlanWindow:      cfg.PlanWindow,
	},
		c.Collector,
		c.Planner,
		c.Executor,
		c.Reviewer,
		c.Tasks,
		c.Plans,
		c.Rules,
		c.Records,
		opts...,
	)
}

// SeedRules loads the configured seed rule file, if any.
func (c *Container) SeedRules(ctx context.Context) error {
	if c.Config.SeedRulesPath == "" {
		return nil
	}
	return reviewer.SeedRules(ctx, c.Rules, c.Config.SeedRulesPath, c.Logger)
}

// Close releases all held resources in reverse acquisition order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
