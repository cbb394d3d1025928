package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string

	Mongo    MongoConfig
	RedisURL string
	LLM      LLMConfig
	SMTP     SMTPConfig
	Telegram TelegramConfig
	HTTP     HTTPConfig
	Crawl    CrawlConfig
	Liveness LivenessConfig
	Dispatch DispatchConfig
}

// MongoConfig configures the document store.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// LLMConfig configures the structured extraction collaborator.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// SMTPConfig configures outbound email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// TelegramConfig configures the Telegram bot used for chat alerts.
type TelegramConfig struct {
	Token string
}

// HTTPConfig configures outbound requests to source marketplaces.
type HTTPConfig struct {
	UserAgent string
	ProxyURL  string
	Timeout   time.Duration
	HostDelay time.Duration
	ChromeBin string
}

// CrawlConfig bounds a crawl run.
type CrawlConfig struct {
	MaxListingsPerSource int
	ListingDelay         time.Duration
	MaxMarkupBytes       int
	TargetCity           string
	RefreshExisting      bool
	DisabledProviders    []string
}

// LivenessConfig bounds a liveness sweep.
type LivenessConfig struct {
	BatchSize    int
	Delay        time.Duration
	ProbeTimeout time.Duration
	StaleAfter   time.Duration
}

// DispatchConfig bounds alert matching and delivery.
type DispatchConfig struct {
	Window      time.Duration
	MaxLookback time.Duration
	MatchLimit  int
	BaseURL     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, falling back to system env vars")
	}

	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "gorent"),
			Timeout:  getEnvDuration("MONGO_TIMEOUT", 10*time.Second),
		},
		RedisURL: getEnv("REDIS_URL", ""),

		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", ""),
			BaseURL: getEnv("LLM_BASE_URL", ""),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout: getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "alerts@go-rent.local"),
		},
		Telegram: TelegramConfig{
			Token: getEnv("TELEGRAM_TOKEN", ""),
		},

		HTTP: HTTPConfig{
			UserAgent: getEnv("HTTP_USER_AGENT", "go-rent/1.0 (+https://github.com/rsilvagit/go-rent)"),
			ProxyURL:  getEnv("HTTP_PROXY_URL", ""),
			Timeout:   getEnvDuration("HTTP_TIMEOUT", 20*time.Second),
			HostDelay: getEnvDuration("HTTP_HOST_DELAY", 800*time.Millisecond),
			ChromeBin: getEnv("CHROME_BIN", ""),
		},

		Crawl: CrawlConfig{
			MaxListingsPerSource: getEnvInt("CRAWL_MAX_LISTINGS_PER_SOURCE", 15),
			ListingDelay:         getEnvDuration("CRAWL_LISTING_DELAY", 500*time.Millisecond),
			MaxMarkupBytes:       getEnvInt("CRAWL_MAX_MARKUP_BYTES", 60000),
			TargetCity:           getEnv("CRAWL_TARGET_CITY", "Berlin"),
			RefreshExisting:      getEnvBool("CRAWL_REFRESH_EXISTING", false),
			DisabledProviders:    getEnvList("CRAWL_DISABLED_PROVIDERS"),
		},

		Liveness: LivenessConfig{
			BatchSize:    getEnvInt("LIVENESS_BATCH_SIZE", 200),
			Delay:        getEnvDuration("LIVENESS_DELAY", time.Second),
			ProbeTimeout: getEnvDuration("LIVENESS_PROBE_TIMEOUT", 10*time.Second),
			StaleAfter:   getEnvDuration("LIVENESS_STALE_AFTER", 90*24*time.Hour),
		},

		Dispatch: DispatchConfig{
			Window:      getEnvDuration("DISPATCH_WINDOW", 24*time.Hour),
			MaxLookback: getEnvDuration("DISPATCH_MAX_LOOKBACK", 72*time.Hour),
			MatchLimit:  getEnvInt("DISPATCH_MATCH_LIMIT", 20),
			BaseURL:     getEnv("DISPATCH_BASE_URL", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return n
		}
		slog.Warn("invalid integer in env, using default", "key", key, "value", val)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
		slog.Warn("invalid boolean in env, using default", "key", key, "value", val)
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("800ms", "90m") and a "d"
// suffix for whole days ("90d").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if days, ok := strings.CutSuffix(val, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration in env, using default", "key", key, "value", val)
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
