package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application. Scoring thresholds are
// named values rather than constants; unset low-stock thresholds disable the
// days-based tiers.
type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Listing fetch
	ListingBaseURL  string
	FetchMinDelayMs int
	FetchMaxDelayMs int
	EnrichListedAt  bool

	// Trend analysis
	RankSurgeThreshold    int
	ConsistentRankCeiling int

	// Operational scoring
	LowStockDaysThreshold         float64
	LowStockHighFactor            float64
	NegativeReviewWindowDays      int
	NegativeReviewMediumThreshold int
	NegativeReviewHighCount       int
	OperationalStaleAfterHours    int
	OperationalSourceURL          string

	// Category sync
	CategoryConfigPath string
}

// Load reads configuration from environment variables.
func Load() *Config {
	defaultDSN := "root:rankpulse@tcp(127.0.0.1:3306)/rankpulse?charset=utf8mb4&parseTime=True&loc=Local"

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", defaultDSN),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ListingBaseURL:  getEnv("LISTING_BASE_URL", "https://www.amazon.com"),
		FetchMinDelayMs: getIntEnv("FETCH_MIN_DELAY_MS", 1000),
		FetchMaxDelayMs: getIntEnv("FETCH_MAX_DELAY_MS", 3000),
		EnrichListedAt:  getBoolEnv("ENRICH_LISTED_AT", false),

		RankSurgeThreshold:    getIntEnv("RANK_SURGE_THRESHOLD", 10),
		ConsistentRankCeiling: getIntEnv("CONSISTENT_RANK_CEILING", 100),

		LowStockDaysThreshold:         getFloatEnv("LOW_STOCK_DAYS_THRESHOLD", 0),
		LowStockHighFactor:            getFloatEnv("LOW_STOCK_HIGH_FACTOR", 0),
		NegativeReviewWindowDays:      getIntEnv("NEGATIVE_REVIEW_WINDOW_DAYS", 30),
		NegativeReviewMediumThreshold: getIntEnv("NEGATIVE_REVIEW_MEDIUM_THRESHOLD", 3),
		NegativeReviewHighCount:       getIntEnv("NEGATIVE_REVIEW_HIGH_COUNT", 10),
		OperationalStaleAfterHours:    getIntEnv("OPERATIONAL_STALE_AFTER_HOURS", 48),
		OperationalSourceURL:          getEnv("OPERATIONAL_SOURCE_URL", ""),

		CategoryConfigPath: getEnv("CATEGORY_CONFIG_PATH", "categories.json"),
	}
}

// FetchMinDelay returns the lower bound of the courtesy delay.
func (c *Config) FetchMinDelay() time.Duration {
	return time.Duration(c.FetchMinDelayMs) * time.Millisecond
}

// FetchMaxDelay returns the upper bound of the courtesy delay.
func (c *Config) FetchMaxDelay() time.Duration {
	return time.Duration(c.FetchMaxDelayMs) * time.Millisecond
}

// OperationalStaleAfter returns the age after which the operational summary
// flags its data as stale.
func (c *Config) OperationalStaleAfter() time.Duration {
	return time.Duration(c.OperationalStaleAfterHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
