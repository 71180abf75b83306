package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"house-finder/client"
	"house-finder/config"
	"house-finder/models"
	"house-finder/notify"
	"house-finder/ratelimit"
	"house-finder/scraper/elisa"
	"house-finder/scraper/etuovi"
	"house-finder/scraper/openroute"
	"house-finder/services"
	"house-finder/storage"
	"house-finder/utils"
)

const (
	providerSpacing = 5 * time.Second
	telegramSpacing = time.Second
)

func main() {
	cfg := config.Load()

	logger, err := utils.NewLoggerWithConfig(loggerConfig(cfg))
	if err != nil {
		logger.Warn("Fluent Bit logging disabled: %v", err)
	}
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== House finder starting ===")
	logger.Info("Config: cities %v | publishing %s | concurrency %d | cache %s",
		cfg.Cities, cfg.PublishingTime, cfg.MaxConcurrency, cfg.CacheBackend)

	retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: time.Second, Logger: logger}
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	registry := ratelimit.NewRegistry(ratelimit.WithLogger(logger))
	httpTransport := client.NewHTTPTransport(timeout)

	caches, closeCaches, err := newCacheFactory(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open cache: %v", err)
		os.Exit(1)
	}
	defer closeCaches()

	newClient := func(name string, policy ratelimit.Policy, opts ...client.Option) *client.Client {
		base := []client.Option{
			client.WithTransport(httpTransport),
			client.WithLimiter(registry),
			client.WithPolicy(policy),
			client.WithLogger(logger),
		}
		return client.New(name, append(base, opts...)...)
	}

	// Listing source
	detailOpts := []client.Option{client.WithCache(caches("etuovi/kohde", "html"))}
	if cfg.DetailRenderer == "chrome" {
		browser := client.NewBrowserTransport(cfg.ChromeBin, timeout, httpTransport)
		defer browser.Close()
		detailOpts = append(detailOpts, client.WithTransport(browser))
		logger.Info("Rendering detail pages with headless Chrome")
	}
	var source services.ListingSource = etuovi.New(
		newClient("etuovi", ratelimit.Every(providerSpacing),
			client.WithCache(caches("etuovi/announcements/search/listpage", "json"))),
		newClient("etuovi", ratelimit.Every(providerSpacing), detailOpts...),
		etuovi.Config{
			PriceMax:       cfg.PriceMax,
			PublishingTime: cfg.PublishingTime,
			Cities:         cfg.Cities,
			CacheSearch:    cfg.CacheAnnouncements,
			CacheDetail:    cfg.CacheDetailHTML,
		},
		logger,
	)

	// Providers
	broadband := elisa.New(
		newClient("elisa", ratelimit.Every(providerSpacing),
			client.WithCache(caches("elisa/address/search", "json"))),
		newClient("elisa", ratelimit.Every(providerSpacing),
			client.WithCache(caches("elisa/products/fixedBroadbandProducts", "json"))),
		cfg.CacheBroadband,
		logger,
	)

	var routing services.RoutingProvider
	if cfg.OpenRouteServiceToken != "" {
		routing = openroute.New(
			newClient("openroute", openroute.Policy,
				client.WithCache(caches("openroute/directions/cycling-regular", "json"))),
			cfg.OpenRouteServiceToken,
		)
	} else {
		logger.Warn("OPEN_ROUTE_SERVICE_TOKEN not set, cycling distance is skipped")
	}

	// Discovery
	listings, err := source.Listings(ctx)
	if err != nil {
		logger.Error("Listing discovery failed: %v", err)
		if len(listings) == 0 {
			os.Exit(1)
		}
		logger.Warn("Continuing with the %d listings found before the failure", len(listings))
	}
	logger.Info("Discovered %d listings", len(listings))

	// Enrichment
	enricher := services.NewEnricher(criteria(cfg), routing, broadband, logger,
		services.WithConcurrency(cfg.MaxConcurrency),
		services.WithGeohashPrecision(cfg.GeohashPrecision))
	report := enricher.Run(ctx, listings)

	// Reports
	csvWriter := storage.NewCSVWriter(cfg.OutputDir, report.RunID)
	writers := []namedWriter{{csvWriter.Path(), csvWriter}}

	var pg *storage.PostgresWriter
	if cfg.PersistResults {
		pg, err = storage.NewPostgresWriter(ctx, cfg.DSN(), report.RunID, retry)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
		} else {
			defer pg.Close()
			writers = append(writers, namedWriter{"PostgreSQL (table: house_results)", pg})
		}
	}

	for _, w := range writers {
		if err := w.WriteResults(report.Results); err != nil {
			logger.Error("Writing results to %s failed: %v", w.name, err)
			if w.ReportWriter == services.ReportWriter(pg) {
				pg = nil
			}
			continue
		}
		logger.Info("Results saved to %s", w.name)
	}

	insightsFrom := report
	if pg != nil {
		insightsFrom = readBack(ctx, pg, report, logger)
	}
	services.PrintInsights(os.Stdout, services.GenerateInsights(insightsFrom))

	// Notification
	notifier, closeNotifier := newNotifier(cfg, retry, logger, newClient)
	defer closeNotifier()
	if notifier.Len() == 0 {
		logger.Info("No notification target configured")
	} else {
		sent, failed := services.Announce(ctx, notifier, report, logger)
		logger.Info("Notifications: %d sent, %d failed", sent, failed)
	}

	fmt.Println(services.Summary(report))
}

func loggerConfig(cfg *config.Config) utils.LoggerConfig {
	lc := utils.LoggerConfig{Level: utils.ParseLevel(cfg.LogLevel)}
	if cfg.FluentEnabled {
		lc.FluentHost = cfg.FluentHost
		lc.FluentPort = cfg.FluentPort
	}
	return lc
}

func criteria(cfg *config.Config) models.Criteria {
	c := models.Criteria{
		HouseMinSquareMeters: cfg.HouseMinSquareMeters,
		MaxDistanceKm:        cfg.MaxDistanceKm,
		MinMbps:              cfg.MinMbps,
		ExcludedWords:        cfg.ExcludedWords,
	}
	if cfg.HasReference() {
		c.Reference = &models.Coordinates{
			Latitude:  *cfg.LocationLatitude,
			Longitude: *cfg.LocationLongitude,
		}
	}
	return c
}

// newCacheFactory returns a constructor for per-provider content caches on
// the configured backend.
func newCacheFactory(ctx context.Context, cfg *config.Config) (func(name, ext string) storage.ContentCache, func(), error) {
	if cfg.CacheBackend != "redis" {
		return func(name, ext string) storage.ContentCache {
			return storage.NewFileCache(cfg.CacheDir, name, ext)
		}, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return func(name, _ string) storage.ContentCache {
		return storage.NewRedisCache(rdb, "house-finder", name)
	}, func() { rdb.Close() }, nil
}

type namedWriter struct {
	name string
	services.ReportWriter
}

// readBack loads the stored run for insights. It falls back to the
// in-memory report when the query fails.
func readBack(ctx context.Context, pg *storage.PostgresWriter, report *services.RunReport, logger *utils.Logger) *services.RunReport {
	stored, err := pg.FetchRun(ctx, report.RunID)
	if err != nil {
		logger.Error("Failed to fetch results from DB for insights: %v", err)
		return report
	}
	fromDB := *report
	fromDB.Results = stored
	return &fromDB
}

func newNotifier(
	cfg *config.Config,
	retry *utils.RetryConfig,
	logger *utils.Logger,
	newClient func(string, ratelimit.Policy, ...client.Option) *client.Client,
) (*notify.Multi, func()) {
	var targets []notify.Target
	closeFn := func() {}

	if cfg.TelegramBotToken != "" {
		tg := notify.NewTelegram(newClient("telegram", ratelimit.Every(telegramSpacing)),
			cfg.TelegramBotToken, cfg.TelegramChatID)
		targets = append(targets, notify.Target{Name: "telegram", Notifier: tg})
	}

	if cfg.RabbitMQURL != "" {
		mq, err := notify.NewRabbitMQ(notify.RabbitMQConfig{URL: cfg.RabbitMQURL, Exchange: cfg.RabbitMQExchange})
		if err != nil {
			logger.Error("RabbitMQ notifications disabled: %v", err)
		} else {
			targets = append(targets, notify.Target{Name: "rabbitmq", Notifier: mq})
			closeFn = func() { mq.Close() }
		}
	}

	return notify.NewMulti(retry, logger, targets...), closeFn
}
