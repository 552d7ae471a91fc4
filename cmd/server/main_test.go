package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"karpet/internal/bot"
	"karpet/internal/cache"
	"karpet/internal/config"
	"karpet/internal/job"
	"karpet/pkg/tracing"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps(t)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func TestNewCoinListCacheWithoutRedis(t *testing.T) {
	orig := cache.Client
	cache.Client = nil
	defer func() { cache.Client = orig }()

	if _, ok := newCoinListCache().(*cache.MemoryCoinListCache); !ok {
		t.Fatal("expected memory cache when redis is not connected")
	}
}

func stubServerDeps(t *testing.T) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origStartRefresher := startRefresherFunc
	origStartTelegram := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServer
	origRedis := cache.Client

	cache.Client = nil
	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{HTTPPort: 0, ServiceName: "karpet-test", CoinListRefreshSecs: 1, HistorySource: "coingecko"}
	}
	initPostgresFunc = func(context.Context, string) error { return nil }
	initRedisFunc = func(context.Context, string) error { return nil }
	initTracerFunc = func(ctx context.Context, opts tracing.Options) (*sdktrace.TracerProvider, trace.Tracer, error) {
		if opts.ServiceName != "karpet-test" {
			t.Errorf("tracer got service name %q", opts.ServiceName)
		}
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	startRefresherFunc = func(*job.CoinListRefresher, context.Context) {}
	startTelegramBotFunc = func(token string, k bot.Karpet) {
		if k == nil {
			t.Error("bot started without a service")
		}
	}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServer = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		startRefresherFunc = origStartRefresher
		startTelegramBotFunc = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServer = origShutdownHTTP
		cache.Client = origRedis
	}
}
