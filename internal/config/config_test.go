package config

import "testing"

var configKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_URL", "REDIS_URL", "HTTP_PORT", "TRACING_ENABLED",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "KARPET_SERVICE_NAME", "HISTORY_SOURCE", "CRYPTOCOMPARE_API_KEY",
	"TWITTER_BEARER_TOKEN", "COINLIST_REFRESH_SECS", "ENRICH_WORKERS", "ENRICH_TIMEOUT_SECS",
	"ENRICH_CONTENT", "TRENDS_SLEEP_MS", "KARPET_TRENDS_LANGUAGE", "KARPET_TRENDS_TZ", "KARPET_API_KEY",
}

func clearEnv(t *testing.T) {
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.HTTPPort != 8080 || cfg.ServiceName != "karpet" || !cfg.TracingEnabled {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.HistorySource != "coingecko" || cfg.CoinListRefreshSecs != 3600 {
		t.Fatalf("unexpected data defaults: %+v", cfg)
	}
	if cfg.EnrichWorkers != 8 || cfg.EnrichTimeoutSecs != 15 || cfg.EnrichContent {
		t.Fatalf("unexpected enricher defaults: %+v", cfg)
	}
	if cfg.TrendsSleepMS != 1000 || cfg.TrendsLanguage != "en-US" || cfg.TrendsTZ != 360 {
		t.Fatalf("unexpected trends defaults: %+v", cfg)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("HISTORY_SOURCE", "CryptoCompare")
	t.Setenv("TWITTER_BEARER_TOKEN", " bearer ")
	t.Setenv("ENRICH_WORKERS", "3")
	t.Setenv("ENRICH_CONTENT", "true")
	t.Setenv("TRENDS_SLEEP_MS", "0")
	t.Setenv("KARPET_TRENDS_TZ", "-60")
	t.Setenv("KARPET_API_KEY", " secret ")

	cfg := Load()
	if cfg.APIKey != "secret" {
		t.Fatalf("expected trimmed api key, got %q", cfg.APIKey)
	}
	if cfg.TelegramBotToken != "token" || cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.HTTPPort != 9090 || cfg.TracingEnabled {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
	if cfg.HistorySource != "cryptocompare" || cfg.TwitterBearerToken != "bearer" {
		t.Fatalf("unexpected source config: %+v", cfg)
	}
	if cfg.EnrichWorkers != 3 || !cfg.EnrichContent || cfg.TrendsSleepMS != 0 || cfg.TrendsTZ != -60 {
		t.Fatalf("unexpected tuning config: %+v", cfg)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "bad")
	t.Setenv("HISTORY_SOURCE", "bloomberg")
	t.Setenv("ENRICH_WORKERS", "-2")
	t.Setenv("TRENDS_SLEEP_MS", "-1")
	t.Setenv("KARPET_TRENDS_TZ", "5000")

	cfg := Load()
	if cfg.HTTPPort != 8080 || cfg.HistorySource != "coingecko" || cfg.EnrichWorkers != 8 {
		t.Fatalf("invalid values should fall back to defaults: %+v", cfg)
	}
	if cfg.TrendsSleepMS != 1000 || cfg.TrendsTZ != 360 {
		t.Fatalf("invalid trends values should fall back to defaults: %+v", cfg)
	}
}
