package job

import (
	"context"
	"log"
	"time"

	"karpet/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CoinDirectory is one upstream coin list, keyed by source name in the cache.
type CoinDirectory struct {
	Source string
	Fetch  func(ctx context.Context) ([]domain.CoinListing, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, source string)
}

// CoinListRefresher keeps the cached coin directories warm so symbol
// resolution never waits on a cold download.
type CoinListRefresher struct {
	tracer      trace.Tracer
	cache       CacheInvalidator
	directories []CoinDirectory
	interval    time.Duration
	stagger     time.Duration
}

func NewCoinListRefresher(tracer trace.Tracer, cache CacheInvalidator, intervalSecs int, directories ...CoinDirectory) *CoinListRefresher {
	return &CoinListRefresher{
		tracer:      tracer,
		cache:       cache,
		directories: directories,
		interval:    time.Duration(intervalSecs) * time.Second,
		stagger:     5 * time.Second,
	}
}

// Start refreshes every directory immediately and then once per interval.
// Blocks until ctx is cancelled.
func (r *CoinListRefresher) Start(ctx context.Context) {
	log.Println("Coin list refresher starting...")

	r.refreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Coin list refresher stopped")
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *CoinListRefresher) refreshAll(ctx context.Context) {
	for i, dir := range r.directories {
		if i > 0 && r.stagger > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.stagger):
			}
		}
		if err := r.refresh(ctx, dir); err != nil {
			log.Printf("coin list refresh error for %s: %v", dir.Source, err)
		}
	}
}

func (r *CoinListRefresher) refresh(ctx context.Context, dir CoinDirectory) error {
	ctx, span := r.tracer.Start(ctx, "job.refresh-coin-list")
	defer span.End()
	span.SetAttributes(attribute.String("source", dir.Source))

	if r.cache != nil {
		r.cache.Invalidate(ctx, dir.Source)
	}
	coins, err := dir.Fetch(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("coins", len(coins)))
	return nil
}
