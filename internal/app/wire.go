package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/janhruby/arbiwatch/internal/blob/s3"
	"github.com/janhruby/arbiwatch/internal/cache/redis"
	"github.com/janhruby/arbiwatch/internal/config"
	"github.com/janhruby/arbiwatch/internal/detector"
	"github.com/janhruby/arbiwatch/internal/domain"
	"github.com/janhruby/arbiwatch/internal/exchange"
	"github.com/janhruby/arbiwatch/internal/fees"
	"github.com/janhruby/arbiwatch/internal/fx"
	"github.com/janhruby/arbiwatch/internal/monitor"
	"github.com/janhruby/arbiwatch/internal/notify"
	"github.com/janhruby/arbiwatch/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
// Optional sinks are nil when their backend is disabled in the configuration.
type Dependencies struct {
	Monitor  *monitor.Monitor
	Detector *detector.Detector
	FeeModel *fees.Model

	// Streamers hold adapters with a background connection that must be
	// started alongside the poll loop.
	Streamers []*exchange.KrakenWS

	// Sinks
	QuoteStore       domain.QuoteStore
	OpportunityStore domain.OpportunityStore
	HealthStore      domain.HealthStore
	Archiver         domain.SnapshotArchiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (shared FX-rate cache, optional) ---
	var rateCache domain.RateCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		rateCache = redis.NewRateCache(redisClient)
	}

	// --- Currency normalization ---
	normalizer := fx.NewNormalizer(fx.NormalizerConfig{
		Source:       fx.NewClient(cfg.FX.BaseURL),
		Cache:        rateCache,
		TTL:          cfg.FX.TTL.Duration,
		StaleCeiling: cfg.FX.StaleCeiling.Duration,
		Logger:       logger,
	})

	// --- Exchange adapters and fee providers ---
	adapters := make([]domain.PriceAdapter, 0, len(cfg.Exchanges))
	pairs := make(map[string]string, len(cfg.Exchanges))
	staticFees := make(map[string]float64, len(cfg.Exchanges))
	providers := make(map[string]domain.FeeProvider)

	for _, ex := range cfg.Exchanges {
		adapter, provider, err := buildAdapter(ex, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange %s: %w", ex.ID, err)
		}
		if ws, ok := adapter.(*exchange.KrakenWS); ok {
			deps.Streamers = append(deps.Streamers, ws)
		}
		adapters = append(adapters, adapter)
		pairs[ex.ID] = ex.Pair
		staticFees[ex.ID] = ex.StaticFeePct
		if ex.DynamicFees && provider != nil {
			providers[ex.ID] = provider
		}
	}

	// --- Fee model ---
	feeModel, err := fees.New(fees.Config{
		StaticFees:      staticFees,
		Providers:       providers,
		DefaultFeePct:   cfg.Arbitrage.DefaultFeePct,
		RefreshInterval: cfg.Arbitrage.FeeRefreshInterval.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: fees: %w", err)
	}
	deps.FeeModel = feeModel

	deps.Monitor = monitor.New(adapters, pairs, normalizer, monitor.Config{
		FetchTimeout:  cfg.Monitor.FetchTimeout.Duration,
		CycleTimeout:  cfg.Monitor.CycleTimeout.Duration,
		DownThreshold: cfg.Monitor.DownThreshold,
	}, logger)

	deps.Detector = detector.New(feeModel, cfg.Arbitrage.MinProfitPct, logger)

	// --- PostgreSQL persistence (optional) ---
	if cfg.Postgres.Enabled {
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
		deps.QuoteStore = postgres.NewQuoteStore(pool)
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.HealthStore = postgres.NewHealthStore(pool)
	}

	// --- S3 cycle archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3Client, cfg.S3.Prefix)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
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

// buildAdapter constructs the price adapter and, where supported, the dynamic
// fee provider for one configured exchange.
func buildAdapter(ex config.ExchangeConfig, logger *slog.Logger) (domain.PriceAdapter, domain.FeeProvider, error) {
	switch ex.ID {
	case "kraken":
		rest := exchange.NewKraken(exchange.KrakenConfig{
			BaseURL:   ex.BaseURL,
			ApiKey:    ex.ApiKey,
			ApiSecret: ex.ApiSecret,
		})
		if ex.Transport == "ws" {
			ws := exchange.NewKrakenWS(exchange.KrakenWSConfig{
				WsURL:  ex.WsURL,
				Pair:   ex.Pair,
				Logger: logger,
			})
			return ws, rest, nil
		}
		return rest, rest, nil
	case "coinmate":
		cm := exchange.NewCoinmate(exchange.CoinmateConfig{
			BaseURL:   ex.BaseURL,
			Pair:      ex.Pair,
			ApiKey:    ex.ApiKey,
			ApiSecret: ex.ApiSecret,
			ClientID:  ex.ClientID,
		})
		return cm, cm, nil
	default:
		return nil, nil, fmt.Errorf("unknown exchange id %q", ex.ID)
	}
}
