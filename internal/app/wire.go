package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/stockledger/internal/blob/s3"
	"github.com/alanyoungcy/stockledger/internal/cache/memory"
	"github.com/alanyoungcy/stockledger/internal/cache/redis"
	"github.com/alanyoungcy/stockledger/internal/config"
	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/alanyoungcy/stockledger/internal/notify"
	"github.com/alanyoungcy/stockledger/internal/server/handler"
	"github.com/alanyoungcy/stockledger/internal/service"
	"github.com/alanyoungcy/stockledger/internal/store/jsonfile"
	"github.com/alanyoungcy/stockledger/internal/store/postgres"
	"github.com/alanyoungcy/stockledger/internal/store/sqlite"
)

// memoryStreamMaxLen bounds each in-process stream when redis is disabled.
const memoryStreamMaxLen = 10000

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	PlanStore     domain.PlanStore
	TradeStore    domain.TradeStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage; nil when S3 is disabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks probe the external backends that were wired.
	HealthChecks []handler.HealthCheck
}

// Services are the ledger services built on top of Dependencies.
type Services struct {
	Positions *service.PositionService
	Trades    *service.TradeService
	Plans     *service.PlanService
	Prices    *service.PriceService
	Profits   *service.ProfitService
	Preview   *service.Preview
	Monitor   *service.PlanMonitor
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Record store ---
	var jsonStore *jsonfile.Store
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.PlanStore = postgres.NewPlanStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "postgres", Check: pgClient.Ping})

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		deps.PositionStore = sqlite.NewPositionStore(db)
		deps.PlanStore = sqlite.NewPlanStore(db)
		deps.TradeStore = sqlite.NewTradeStore(db)
		deps.AuditStore = sqlite.NewAuditStore(db)
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "sqlite", Check: db.Ping})

	default:
		store, err := jsonfile.Open(cfg.Store.JSONPath, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: json store: %w", err)
		}
		jsonStore = store
		deps.PositionStore = store.Positions()
		deps.PlanStore = store.Plans()
		deps.TradeStore = store.Trades()
		deps.AuditStore = store.Audit()
	}

	// --- Redis, or in-process fallbacks ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "redis", Check: redisClient.Ping})
	} else {
		logger.InfoContext(ctx, "wire: redis disabled, using in-process cache, lock and bus")
		if jsonStore != nil {
			deps.PriceCache = jsonStore.Prices()
		} else {
			deps.PriceCache = memory.NewPriceCache()
		}
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus(memoryStreamMaxLen)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			s3blob.LedgerSource{
				Positions: deps.PositionStore,
				Plans:     deps.PlanStore,
				Trades:    deps.TradeStore,
			},
			deps.AuditStore,
			s3Client.Prefix(),
			logger,
		)
		deps.HealthChecks = append(deps.HealthChecks, handler.HealthCheck{Name: "s3", Check: s3Client.Health})
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// BuildServices assembles the ledger services over deps.
func BuildServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *Services {
	var sink domain.TriggerSink
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		sink = notify.NewTriggerAlerts(deps.Notifier)
	}

	positions := service.NewPositionService(deps.PositionStore, deps.PlanStore, deps.SignalBus, deps.AuditStore, logger)
	plans := service.NewPlanService(deps.PositionStore, deps.PlanStore, deps.SignalBus, deps.AuditStore, sink, logger)
	prices := service.NewPriceService(deps.PriceCache, deps.PositionStore, deps.SignalBus, logger)

	return &Services{
		Positions: positions,
		Trades: service.NewTradeService(
			deps.TradeStore, positions, commissionCalculator(cfg.Commission), deps.SignalBus, deps.AuditStore, logger,
		),
		Plans:   plans,
		Prices:  prices,
		Profits: service.NewProfitService(deps.TradeStore, deps.PositionStore, deps.PriceCache, logger),
		Preview: service.NewPreview(),
		Monitor: service.NewPlanMonitor(plans, prices, deps.LockManager, cfg.MonitorInterval(), logger),
	}
}

func commissionCalculator(cfg config.CommissionConfig) *service.CommissionCalculator {
	var strategy service.CommissionStrategy
	switch cfg.Strategy {
	case "ratio_only":
		strategy = service.RatioOnly{Ratio: cfg.Ratio}
	default:
		strategy = service.FixedPlusRatio{Fixed: cfg.Fixed, Ratio: cfg.Ratio}
	}
	return service.NewCommissionCalculator(strategy, cfg.Floor)
}
