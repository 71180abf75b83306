package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"house-finder/scraper/etuovi"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Search
	PriceMax       *int
	Cities         []string
	PublishingTime string

	// Criteria
	HouseMinSquareMeters *float64
	MaxDistanceKm        *float64
	LocationLatitude     *float64
	LocationLongitude    *float64
	MinMbps              *int
	ExcludedWords        []string

	OpenRouteServiceToken string

	// Cache
	CacheDir           string
	CacheBackend       string
	RedisAddr          string
	RedisPassword      string
	CacheAnnouncements bool
	CacheDetailHTML    bool
	CacheBroadband     bool

	// Execution
	MaxConcurrency     int
	HTTPTimeoutSeconds int
	MaxRetries         int
	GeohashPrecision   uint
	DetailRenderer     string
	ChromeBin          string

	// Output
	OutputDir      string
	PersistResults bool

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Notification
	TelegramBotToken string
	TelegramChatID   string
	RabbitMQURL      string
	RabbitMQExchange string

	// Logging
	LogLevel      string
	FluentEnabled bool
	FluentHost    string
	FluentPort    int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PriceMax:       getEnvIntPtr("PRICE_MAX"),
		Cities:         getEnvList("CITIES"),
		PublishingTime: strings.ToUpper(getEnv("PUBLISHING_TIME", "ANY_DAY")),

		HouseMinSquareMeters: getEnvFloatPtr("HOUSE_MIN_SQUARE_METERS"),
		MaxDistanceKm:        getEnvFloatPtr("MAX_DISTANCE_KM"),
		LocationLatitude:     getEnvFloatPtr("LOCATION_LATITUDE"),
		LocationLongitude:    getEnvFloatPtr("LOCATION_LONGITUDE"),
		MinMbps:              getEnvIntPtr("MIN_MBPS"),
		ExcludedWords:        getEnvList("EXCLUDED_WORDS"),

		OpenRouteServiceToken: getEnv("OPEN_ROUTE_SERVICE_TOKEN", ""),

		CacheDir:           getEnv("CACHE_DIR", "./cache"),
		CacheBackend:       strings.ToLower(getEnv("CACHE_BACKEND", "file")),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CacheAnnouncements: getEnvBool("CACHE_ANNOUNCEMENTS", false),
		CacheDetailHTML:    getEnvBool("CACHE_DETAIL_HTML", false),
		CacheBroadband:     getEnvBool("CACHE_BROADBAND", false),

		MaxConcurrency:     getEnvInt("MAX_CONCURRENCY", 8),
		HTTPTimeoutSeconds: getEnvInt("HTTP_TIMEOUT_SECONDS", 30),
		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		GeohashPrecision:   uint(getEnvInt("GEOHASH_PRECISION", 7)),
		DetailRenderer:     strings.ToLower(getEnv("DETAIL_RENDERER", "http")),
		ChromeBin:          getEnv("CHROME_BIN", ""),

		OutputDir:      getEnv("OUTPUT_DIR", "./output"),
		PersistResults: getEnvBool("PERSIST_RESULTS", false),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "houses"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "house_finder"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "house-finder"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		FluentEnabled: getEnvBool("FLUENT_ENABLED", false),
		FluentHost:    getEnv("FLUENT_HOST", "localhost"),
		FluentPort:    getEnvInt("FLUENT_PORT", 24224),
	}
}

// Validate checks settings that only make sense together.
func (c *Config) Validate() error {
	var errs []error

	if (c.LocationLatitude == nil) != (c.LocationLongitude == nil) {
		errs = append(errs, errors.New("LOCATION_LATITUDE and LOCATION_LONGITUDE must be set together"))
	}
	if c.MaxDistanceKm != nil && !c.HasReference() {
		errs = append(errs, errors.New("MAX_DISTANCE_KM requires LOCATION_LATITUDE and LOCATION_LONGITUDE"))
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if len(c.Cities) == 0 {
		errs = append(errs, errors.New("CITIES must name at least one city"))
	}
	if !slices.Contains(etuovi.PublishingTimes, c.PublishingTime) {
		errs = append(errs, fmt.Errorf("PUBLISHING_TIME %q is not one of %s",
			c.PublishingTime, strings.Join(etuovi.PublishingTimes, ", ")))
	}
	if c.GeohashPrecision < 1 || c.GeohashPrecision > 12 {
		errs = append(errs, errors.New("GEOHASH_PRECISION must be between 1 and 12"))
	}
	if c.CacheBackend != "file" && c.CacheBackend != "redis" {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND %q must be file or redis", c.CacheBackend))
	}
	if c.DetailRenderer != "http" && c.DetailRenderer != "chrome" {
		errs = append(errs, fmt.Errorf("DETAIL_RENDERER %q must be http or chrome", c.DetailRenderer))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENCY must be positive"))
	}

	return errors.Join(errs...)
}

// HasReference reports whether a reference location is configured.
func (c *Config) HasReference() bool {
	return c.LocationLatitude != nil && c.LocationLongitude != nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvIntPtr(key string) *int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return &n
		}
		log.Printf("[config] Ignoring %s: %q is not an integer", key, val)
	}
	return nil
}

func getEnvFloatPtr(key string) *float64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
		log.Printf("[config] Ignoring %s: %q is not a number", key, val)
	}
	return nil
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
