package config

import (
	"os"
	"strconv"
	"time"

	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// GNJOY endpoints
	GnjoyBaseURL     string
	DealListEndpoint string
	DealViewEndpoint string
	Top5Endpoint     string

	// HTTP
	HTTPTimeout time.Duration

	// Bulk crawl pacing
	ItemDetailDelay time.Duration
	PageDelay       time.Duration
	MaxCrawlPages   int

	// Optional bulk crawl launched at startup. Empty term disables it.
	CrawlTerm     string
	CrawlServerID int

	// Rate limit lockout
	RateLimitBlock    time.Duration
	RateLimitCacheKey string

	// Watch-list monitoring
	ScanInterval    time.Duration
	RefreshInterval time.Duration
	ItemTimeout     time.Duration
	ProcessingHold  time.Duration
	WatchListMax    int

	// Sessions
	SessionStaleAfter time.Duration
	DataDir           string

	// Memcache configuration
	MemcacheAddr string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Diagnostics
	ErrorLogFile string
	MetricsAddr  string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	baseURL := getEnv("GNJOY_BASE_URL", "https://ro.gnjoy.com/itemDeal")
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	maxPages, _ := strconv.Atoi(getEnv("MAX_CRAWL_PAGES", "200"))
	crawlServerID, _ := strconv.Atoi(getEnv("CRAWL_SERVER_ID", "-1"))
	watchMax, _ := strconv.Atoi(getEnv("WATCH_LIST_MAX", "20"))

	return Config{
		GnjoyBaseURL:     baseURL,
		DealListEndpoint: baseURL + "/itemDealList.asp",
		DealViewEndpoint: baseURL + "/itemDealView.asp",
		Top5Endpoint:     baseURL + "/itemTop5BestView.asp",

		HTTPTimeout: getDuration("HTTP_TIMEOUT_SECONDS", 10*time.Second),

		ItemDetailDelay: getDuration("ITEM_DETAIL_DELAY_SECONDS", time.Second),
		PageDelay:       getDuration("PAGE_DELAY_SECONDS", 5*time.Second),
		MaxCrawlPages:   maxPages,

		CrawlTerm:     getEnv("CRAWL_TERM", ""),
		CrawlServerID: crawlServerID,

		RateLimitBlock:    getDuration("RATE_LIMIT_BLOCK_SECONDS", 24*time.Hour),
		RateLimitCacheKey: getEnv("RATE_LIMIT_CACHE_KEY", "gnjoy_rate_limited"),

		ScanInterval:    getDuration("SCAN_INTERVAL_SECONDS", 3*time.Second),
		RefreshInterval: getDuration("REFRESH_INTERVAL_SECONDS", 300*time.Second),
		ItemTimeout:     getDuration("ITEM_TIMEOUT_SECONDS", 15*time.Second),
		ProcessingHold:  getMillis("PROCESSING_HOLD_MILLIS", 500*time.Millisecond),
		WatchListMax:    watchMax,

		SessionStaleAfter: getDuration("SESSION_STALE_AFTER_SECONDS", time.Hour),
		DataDir:           getEnv("DATA_DIR", "data"),

		MemcacheAddr: getEnv("MEMCACHE_ADDR", "localhost:11211"),

		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "romarket"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,

		ErrorLogFile: getEnv("ERROR_LOG_FILE", "monitor_errors.log"),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),

		Environment: getEnv("ROMARKET_ENVIRONMENT", "development"),
	}
}

// Validate ensures all configuration values are coherent
func (c *Config) Validate() error {
	if c.GnjoyBaseURL == "" {
		return perrors.NewConfiguration("gnjoy base URL cannot be empty", nil)
	}
	if c.ItemDetailDelay < 0 || c.PageDelay < 0 {
		return perrors.NewConfiguration("crawl delays cannot be negative", nil)
	}
	if c.MaxCrawlPages <= 0 {
		return perrors.NewConfiguration("max crawl pages must be positive", nil)
	}
	if c.RateLimitBlock <= 0 {
		return perrors.NewConfiguration("rate limit block duration must be positive", nil)
	}
	if c.ScanInterval <= 0 {
		return perrors.NewConfiguration("scan interval must be positive", nil)
	}
	if c.RefreshInterval <= 0 {
		return perrors.NewConfiguration("refresh interval must be positive", nil)
	}
	if c.ItemTimeout <= 0 {
		return perrors.NewConfiguration("item timeout must be positive", nil)
	}
	if c.ProcessingHold < 0 {
		return perrors.NewConfiguration("processing hold cannot be negative", nil)
	}
	if c.WatchListMax <= 0 {
		return perrors.NewConfiguration("watch list max must be positive", nil)
	}
	if c.DataDir == "" {
		return perrors.NewConfiguration("data dir cannot be empty", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getDuration reads a seconds-valued environment variable
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return time.Duration(secs * float64(time.Second))
}

// getMillis reads a milliseconds-valued environment variable
func getMillis(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
