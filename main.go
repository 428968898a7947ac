package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leader001a/ro-market-crawler-sub000/config"
	"github.com/leader001a/ro-market-crawler-sub000/helpers"
	"github.com/leader001a/ro-market-crawler-sub000/internal/aggregate"
	"github.com/leader001a/ro-market-crawler-sub000/internal/crawl"
	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
	"github.com/leader001a/ro-market-crawler-sub000/internal/metrics"
	"github.com/leader001a/ro-market-crawler-sub000/internal/ratelimit"
	"github.com/leader001a/ro-market-crawler-sub000/internal/watch"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
	"github.com/leader001a/ro-market-crawler-sub000/services/cache"
	"github.com/leader001a/ro-market-crawler-sub000/services/publisher"
	"github.com/leader001a/ro-market-crawler-sub000/services/storage"
)

const nameCacheSize = 2048

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("scan_interval", cfg.ScanInterval).
		Dur("refresh_interval", cfg.RefreshInterval).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	m := metrics.NewMetrics()
	startMetricsServer(&cfg, m)

	// The gate is the single shared rate-limit state; every request path
	// gets this one instance
	gate := ratelimit.NewGate(cfg.RateLimitBlock, services.Cache, cfg.RateLimitCacheKey, m)
	gate.Subscribe(func(status ratelimit.Status) {
		publishJSON(services.Publisher, publisher.KindRateLimit, status)
	})
	gate.Restore()

	names, err := market.NewNameCache(nameCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create name cache")
	}
	client := market.NewClient(market.ClientConfig{
		DealListEndpoint: cfg.DealListEndpoint,
		DealViewEndpoint: cfg.DealViewEndpoint,
		Top5Endpoint:     cfg.Top5Endpoint,
		Timeout:          cfg.HTTPTimeout,
	}, gate, names)

	// Seed the name cache from the top-5 rankings; best effort
	if tops, err := client.FetchTopItems(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to fetch top items")
	} else {
		log.Info().Int("categories", len(tops)).Msg("Seeded name cache from top items")
	}

	// Watch-list monitoring
	list := watch.NewList(cfg.WatchListMax, services.Storage)
	if err := list.Load(); err != nil {
		log.Warn().Err(err).Msg("Failed to load watch list")
	}

	agg := aggregate.NewAggregator(names.Resolve)
	worker := watch.NewWorker(list, client, agg, services.Publisher, watch.WorkerConfig{
		ItemTimeout:     cfg.ItemTimeout,
		ProcessingHold:  cfg.ProcessingHold,
		RefreshInterval: cfg.RefreshInterval,
	}, m)
	worker.SetErrorLog(helpers.NewFileLogger(cfg.ErrorLogFile))
	scheduler := watch.NewScheduler(list, worker, cfg.ScanInterval, gate.Blocked)
	scheduler.Start(ctx)

	// Optional bulk crawl alongside the monitor
	crawlDone := make(chan error, 1)
	if cfg.CrawlTerm != "" {
		driver := crawl.NewDriver(client, services.Storage, crawl.DriverConfig{
			ItemDetailDelay: cfg.ItemDetailDelay,
			PageDelay:       cfg.PageDelay,
			MaxPages:        cfg.MaxCrawlPages,
			StaleAfter:      cfg.SessionStaleAfter,
		}, m)
		go func() {
			crawlDone <- runCrawl(ctx, driver, &cfg, services.Publisher, log)
		}()
	}

	// Wait for shutdown signal or crawl outcome
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	case err := <-crawlDone:
		switch {
		case err == nil:
			log.Info().Msg("Bulk crawl finished, monitoring continues")
		case perrors.IsRateLimit(err):
			log.Warn().Err(err).Msg("Bulk crawl halted by rate limit")
		default:
			log.Error().Err(err).Msg("Bulk crawl exited with error")
		}
		// Keep monitoring until a signal arrives
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	scheduler.Stop()
	list.Save()
}

// runCrawl resolves a resume offer and drives one bulk crawl to a
// terminal outcome, publishing progress along the way
func runCrawl(ctx context.Context, driver *crawl.Driver, cfg *config.Config, pub publisher.Publisher, log *logger.Logger) error {
	serverName := market.ServerName(cfg.CrawlServerID)

	opts := crawl.Options{
		SearchTerm: cfg.CrawlTerm,
		ServerID:   cfg.CrawlServerID,
		ServerName: serverName,
		OnProgress: func(p crawl.Progress) {
			publishJSON(pub, publisher.KindCrawlProgress, p)
		},
	}

	offer, err := driver.ResumeOffer(cfg.CrawlTerm, serverName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check for a resumable session")
	}
	if offer != nil {
		log.Info().
			Int("last_crawled_page", offer.Session.LastCrawledPage).
			Int("items", offer.Session.TotalItems).
			Bool("stale", offer.Stale).
			Msg("Resuming incomplete crawl session")
		opts.Resume = offer.Session
	}

	_, err = driver.Run(ctx, opts)
	return err
}

// publishJSON publishes a JSON payload; failures only warn
func publishJSON(pub publisher.Publisher, kind string, v interface{}) {
	if pub == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := pub.Publish(kind, payload); err != nil {
		logger.Warn("Failed to publish %s event: %v", kind, err)
	}
}

// startMetricsServer exposes Prometheus metrics when an address is set
func startMetricsServer(cfg *config.Config, m *metrics.Metrics) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("Metrics server stopped: %v", err)
		}
	}()
	logger.Info("Metrics server listening on %s", cfg.MetricsAddr)
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Storage   *storage.FileStore
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.TrimStreams()
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Lockout persistence. Memcache when reachable, in-process otherwise;
	// an in-process fallback weakens restart survival but keeps the gate
	// functional.
	cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
	if err := cacheService.Ping(); err != nil {
		logger.Warn("Memcache unreachable at %s, using in-process lockout store: %v", cfg.MemcacheAddr, err)
		services.Cache = cache.NewMemoryService()
	} else {
		services.Cache = cacheService
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	// Initialize publisher
	redisPublisher := publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	services.Publisher = redisPublisher

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	// Initialize persistence
	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	services.Storage = store

	logger.Info("Using data directory %s", cfg.DataDir)

	return services, nil
}
