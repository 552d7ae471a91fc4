package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"karpet/internal/bot"
	"karpet/internal/cache"
	"karpet/internal/config"
	"karpet/internal/db"
	"karpet/internal/domain"
	"karpet/internal/handler"
	"karpet/internal/job"
	"karpet/internal/news"
	"karpet/internal/provider"
	"karpet/internal/repository"
	"karpet/internal/service"
	"karpet/internal/trends"
	"karpet/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "karpet/docs"
)

// coinListCache is what both the providers and the refresher need from
// the coin directory cache.
type coinListCache interface {
	provider.CoinListCache
	job.CacheInvalidator
}

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	newPriceRepoFunc = func(tracer trace.Tracer) *repository.PriceRepository {
		return repository.NewPriceRepository(db.Pool, tracer)
	}
	startRefresherFunc   = func(r *job.CoinListRefresher, ctx context.Context) { go r.Start(ctx) }
	startTelegramBotFunc = func(token string, k bot.Karpet) { bot.StartTelegramBot(token, k) }
	newRouterFunc        = gin.Default
	setupSignalNotify    = signal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServer   = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Karpet API
// @version         0.4.0
// @description     Crypto market data, Google Trends, tweets and news retrieval.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres is optional, Redis falls back to in-process caches
	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Printf("postgres unavailable, price archive disabled: %v", err)
	}
	defer db.Close()
	if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
		log.Printf("redis unavailable, using in-memory caches: %v", err)
	}

	tp, tracer, err := initTracerFunc(ctx, tracing.Options{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	listCache := newCoinListCache()
	coingecko := provider.NewCoinGeckoProvider(tracer, listCache)
	coinmarketcap := provider.NewCoinMarketCapProvider(tracer, listCache)

	trendOpts := trends.DefaultOptions()
	trendOpts.Sleep = time.Duration(cfg.TrendsSleepMS) * time.Millisecond
	trendOpts.Language = cfg.TrendsLanguage
	trendOpts.TZ = cfg.TrendsTZ

	deps := service.Deps{
		History: map[string]service.HistorySource{
			domain.SourceCoinGecko:     coingecko,
			domain.SourceCryptoCompare: provider.NewCryptoCompareProvider(tracer, cfg.CryptoCompareAPIKey),
			domain.SourceCoinMarketCap: coinmarketcap,
		},
		HistorySource: cfg.HistorySource,
		Coins:         coingecko,
		Trends:        trends.NewStitcher(tracer, provider.NewGoogleTrendsProvider(tracer)),
		TrendOptions:  trendOpts,
		Tweets:        provider.NewTwitterProvider(tracer, cfg.TwitterBearerToken),
		News:          provider.NewCoinCodexProvider(tracer),
		TopNews:       provider.NewCoinTelegraphProvider(tracer),
		Feeds:         provider.NewFeedProvider(tracer),
		Sentiment:     provider.NewFearGreedProvider(tracer),
		Enricher: news.NewEnricher(tracer, news.Config{
			Workers:        cfg.EnrichWorkers,
			Timeout:        time.Duration(cfg.EnrichTimeoutSecs) * time.Second,
			ExtractContent: cfg.EnrichContent,
		}),
	}

	if db.Pool != nil {
		repo := newPriceRepoFunc(tracer)
		if err := repo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		deps.Repo = repo
	}
	if cache.Client != nil {
		deps.Redis = cache.Client
	}

	karpet := service.NewKarpet(tracer, deps)

	refresher := job.NewCoinListRefresher(tracer, listCache, cfg.CoinListRefreshSecs,
		job.CoinDirectory{Source: domain.SourceCoinGecko, Fetch: coingecko.FetchCoinList},
		job.CoinDirectory{Source: domain.SourceCoinMarketCap, Fetch: coinmarketcap.FetchQuickSearch},
	)
	startRefresherFunc(refresher, ctx)

	startTelegramBotFunc(cfg.TelegramBotToken, karpet)

	h := handler.New(tracer, karpet)

	r := newRouterFunc()
	r.Use(otelgin.Middleware(cfg.ServiceName))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServer(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func newCoinListCache() coinListCache {
	memory := cache.NewMemoryCoinListCache(cache.DefaultCoinListTTL)
	if cache.Client == nil {
		return memory
	}
	return cache.NewTieredCoinListCache(memory, cache.NewRedisCoinListCache(cache.Client, cache.DefaultCoinListTTL))
}
