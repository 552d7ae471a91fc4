package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"karpet/internal/domain"
)

type Config struct {
	HTTPPort         int
	APIKey           string
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string

	TracingEnabled bool
	OTLPEndpoint   string
	ServiceName    string

	HistorySource       string
	CryptoCompareAPIKey string
	TwitterBearerToken  string
	CoinListRefreshSecs int

	EnrichWorkers     int
	EnrichTimeoutSecs int
	EnrichContent     bool

	TrendsSleepMS  int
	TrendsLanguage string
	TrendsTZ       int
}

func Load() *Config {
	cfg := &Config{
		APIKey:              strings.TrimSpace(os.Getenv("KARPET_API_KEY")),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		CryptoCompareAPIKey: strings.TrimSpace(os.Getenv("CRYPTOCOMPARE_API_KEY")),
		TwitterBearerToken:  strings.TrimSpace(os.Getenv("TWITTER_BEARER_TOKEN")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, bot will be disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, price archive will be disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Println("Warning: KARPET_API_KEY not set, /api routes are unauthenticated")
	}
	if cfg.TwitterBearerToken == "" {
		log.Println("Warning: TWITTER_BEARER_TOKEN not set, tweet search will be disabled")
	}

	cfg.HTTPPort = positiveInt("HTTP_PORT", 8080)

	cfg.TracingEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false")

	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	cfg.ServiceName = strings.TrimSpace(os.Getenv("KARPET_SERVICE_NAME"))
	if cfg.ServiceName == "" {
		cfg.ServiceName = "karpet"
	}

	cfg.HistorySource = strings.ToLower(strings.TrimSpace(os.Getenv("HISTORY_SOURCE")))
	switch cfg.HistorySource {
	case domain.SourceCoinGecko, domain.SourceCryptoCompare, domain.SourceCoinMarketCap:
	case "":
		cfg.HistorySource = domain.SourceCoinGecko
	default:
		log.Printf("Warning: unsupported HISTORY_SOURCE=%q, defaulting to %s", cfg.HistorySource, domain.SourceCoinGecko)
		cfg.HistorySource = domain.SourceCoinGecko
	}

	cfg.CoinListRefreshSecs = positiveInt("COINLIST_REFRESH_SECS", 3600)

	cfg.EnrichWorkers = positiveInt("ENRICH_WORKERS", 8)
	cfg.EnrichTimeoutSecs = positiveInt("ENRICH_TIMEOUT_SECS", 15)
	cfg.EnrichContent = strings.EqualFold(strings.TrimSpace(os.Getenv("ENRICH_CONTENT")), "true")

	cfg.TrendsSleepMS = 1000
	if v := strings.TrimSpace(os.Getenv("TRENDS_SLEEP_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TrendsSleepMS = n
		}
	}

	cfg.TrendsLanguage = strings.TrimSpace(os.Getenv("KARPET_TRENDS_LANGUAGE"))
	if cfg.TrendsLanguage == "" {
		cfg.TrendsLanguage = "en-US"
	}

	cfg.TrendsTZ = 360
	if v := strings.TrimSpace(os.Getenv("KARPET_TRENDS_TZ")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= -720 && n <= 840 {
			cfg.TrendsTZ = n
		}
	}

	return cfg
}

func positiveInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
