package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"karpet/internal/domain"
	"karpet/internal/news"
	"karpet/internal/trends"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	basicInfoCacheTTL = 5 * time.Minute
	defaultHistory    = 365 * 24 * time.Hour
	defaultLiveDays   = 1
)

// HistorySource returns daily history for a coin. CoinGecko expects a coin
// id, the other sources a ticker symbol.
type HistorySource interface {
	FetchHistory(ctx context.Context, coin string, start, end time.Time) ([]domain.HistoricalPrice, error)
}

// CoinDirectory covers the CoinGecko lookups.
type CoinDirectory interface {
	CoinIDs(ctx context.Context, symbol string) ([]string, error)
	FetchExchanges(ctx context.Context, id string) ([]string, error)
	FetchBasicInfo(ctx context.Context, id string) (*domain.BasicInfo, error)
	FetchOHLC(ctx context.Context, id string, days int) ([]domain.OHLC, error)
}

type TrendFetcher interface {
	Fetch(ctx context.Context, keywords []string, start, end time.Time, opts trends.Options) (domain.TrendSeries, error)
}

type TweetSearcher interface {
	FetchTweets(ctx context.Context, keywords []string, lang string, since time.Time, limit int) ([]domain.Tweet, error)
}

type NewsLister interface {
	FetchNews(ctx context.Context, symbol string, limit int) ([]*domain.NewsItem, error)
}

type TopNewsLister interface {
	FetchTopNews(ctx context.Context) (editorsChoice, hotStories []*domain.NewsItem, err error)
}

type FeedReader interface {
	FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]*domain.NewsItem, error)
}

type SentimentSource interface {
	FetchIndex(ctx context.Context, days int) ([]domain.SentimentPoint, error)
}

type NewsEnricher interface {
	Enrich(ctx context.Context, items []*domain.NewsItem)
}

// PriceRepository archives fetched history.
type PriceRepository interface {
	UpsertHistory(ctx context.Context, source string, rows []domain.HistoricalPrice) error
	GetHistory(ctx context.Context, source, coin string, start, end time.Time) ([]domain.HistoricalPrice, error)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CoinRef names a coin either by ticker symbol or by CoinGecko id. Exactly
// one of the two must be set.
type CoinRef struct {
	Symbol string
	ID     string
}

func (r CoinRef) validate() error {
	symbol, id := strings.TrimSpace(r.Symbol), strings.TrimSpace(r.ID)
	switch {
	case symbol == "" && id == "":
		return fmt.Errorf("%w: specify a coin symbol or id", domain.ErrInvalidArgument)
	case symbol != "" && id != "":
		return fmt.Errorf("%w: specify either a coin symbol or an id, not both", domain.ErrInvalidArgument)
	}
	return nil
}

// TopNews holds both cointelegraph story lists.
type TopNews struct {
	EditorsChoice []*domain.NewsItem `json:"editors_choice"`
	HotStories    []*domain.NewsItem `json:"hot_stories"`
}

// Deps wires the upstream collaborators. Nil members disable the
// operations that need them.
type Deps struct {
	History       map[string]HistorySource
	HistorySource string
	Coins         CoinDirectory
	Trends        TrendFetcher
	TrendOptions  trends.Options
	Tweets        TweetSearcher
	News          NewsLister
	TopNews       TopNewsLister
	Feeds         FeedReader
	Enricher      NewsEnricher
	Sentiment     SentimentSource
	Repo          PriceRepository
	Redis         RedisClient
}

// Karpet is the data retrieval façade. Start and End bound every
// date-ranged operation.
type Karpet struct {
	tracer trace.Tracer
	deps   Deps
	start  time.Time
	end    time.Time
}

func NewKarpet(tracer trace.Tracer, deps Deps) *Karpet {
	if deps.HistorySource == "" {
		deps.HistorySource = domain.SourceCoinGecko
	}
	if deps.TrendOptions.WindowDays == 0 {
		deps.TrendOptions = trends.DefaultOptions()
	}
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return &Karpet{
		tracer: tracer,
		deps:   deps,
		start:  end.Add(-defaultHistory),
		end:    end,
	}
}

// Between returns a copy bounded to [start, end]. Zero values keep the
// current bound.
func (k *Karpet) Between(start, end time.Time) *Karpet {
	cp := *k
	if !start.IsZero() {
		cp.start = start.UTC()
	}
	if !end.IsZero() {
		cp.end = end.UTC()
	}
	return &cp
}

func (k *Karpet) Start() time.Time { return k.start }
func (k *Karpet) End() time.Time   { return k.end }

// FetchCryptoHistoricalData returns daily history between Start and End
// from the configured source, or from source when it is not empty.
func (k *Karpet) FetchCryptoHistoricalData(ctx context.Context, ref CoinRef, source string) ([]domain.HistoricalPrice, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-crypto-historical-data")
	defer span.End()

	if err := ref.validate(); err != nil {
		return nil, err
	}
	if k.end.Before(k.start) {
		return nil, fmt.Errorf("%w: end precedes start", domain.ErrInvalidArgument)
	}
	if source == "" {
		source = k.deps.HistorySource
	}
	span.SetAttributes(attribute.String("history.source", source))

	src, ok := k.deps.History[source]
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: unknown history source %q", domain.ErrInvalidArgument, source)
	}

	coin, err := k.historyKey(ctx, ref, source)
	if err != nil {
		return nil, err
	}

	rows, err := src.FetchHistory(ctx, coin, k.start, k.end)
	if err != nil {
		if archived := k.archived(ctx, source, coin); len(archived) > 0 {
			log.Printf("history fetch for %s failed, serving %d archived rows: %v", coin, len(archived), err)
			return archived, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no history for %s", domain.ErrNoData, coin)
	}

	if k.deps.Repo != nil {
		if err := k.deps.Repo.UpsertHistory(ctx, source, rows); err != nil {
			log.Printf("archive history for %s: %v", coin, err)
		}
	}
	return rows, nil
}

func (k *Karpet) historyKey(ctx context.Context, ref CoinRef, source string) (string, error) {
	if source == domain.SourceCoinGecko {
		return k.resolveID(ctx, ref)
	}
	symbol := strings.ToUpper(strings.TrimSpace(ref.Symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: %s history needs a coin symbol", domain.ErrInvalidArgument, source)
	}
	return symbol, nil
}

func (k *Karpet) archived(ctx context.Context, source, coin string) []domain.HistoricalPrice {
	if k.deps.Repo == nil {
		return nil
	}
	rows, err := k.deps.Repo.GetHistory(ctx, source, coin, k.start, k.end)
	if err != nil {
		log.Printf("read archived history for %s: %v", coin, err)
		return nil
	}
	return rows
}

// FetchCryptoExchanges lists exchanges trading the coin.
func (k *Karpet) FetchCryptoExchanges(ctx context.Context, ref CoinRef) ([]string, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-crypto-exchanges")
	defer span.End()

	if err := ref.validate(); err != nil {
		return nil, err
	}
	coins, err := k.coins()
	if err != nil {
		return nil, err
	}
	id, err := k.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}
	exchanges, err := coins.FetchExchanges(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(exchanges) == 0 {
		return nil, fmt.Errorf("%w: no exchanges list %s", domain.ErrNoData, id)
	}
	return exchanges, nil
}

// FetchGoogleTrends returns the daily search interest between Start and End.
// Unset override fields fall back to the configured defaults.
func (k *Karpet) FetchGoogleTrends(ctx context.Context, keywords []string, ov trends.Overrides) (domain.TrendSeries, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-google-trends")
	defer span.End()

	if k.deps.Trends == nil {
		return domain.TrendSeries{}, fmt.Errorf("%w: google trends is not configured", domain.ErrInvalidArgument)
	}
	return k.deps.Trends.Fetch(ctx, keywords, k.start, k.end, ov.Apply(k.deps.TrendOptions))
}

// FetchTweets searches tweets posted since Start matching any keyword.
func (k *Karpet) FetchTweets(ctx context.Context, keywords []string, lang string, limit int) ([]domain.Tweet, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-tweets")
	defer span.End()

	if k.deps.Tweets == nil {
		return nil, fmt.Errorf("%w: twitter is not configured", domain.ErrInvalidArgument)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidArgument)
	}
	return k.deps.Tweets.FetchTweets(ctx, keywords, lang, k.start, limit)
}

// FetchNews lists news for symbol, resolves their metadata and keeps the
// dated ones, at most limit.
func (k *Karpet) FetchNews(ctx context.Context, symbol string, limit int) ([]*domain.NewsItem, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-news")
	defer span.End()

	if k.deps.News == nil {
		return nil, fmt.Errorf("%w: news listing is not configured", domain.ErrInvalidArgument)
	}
	items, err := k.deps.News.FetchNews(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	k.enrich(ctx, items)
	return news.FilterDated(items, limit), nil
}

// FetchTopNews returns cointelegraph's editors' choice and hot stories.
func (k *Karpet) FetchTopNews(ctx context.Context) (*TopNews, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-top-news")
	defer span.End()

	if k.deps.TopNews == nil {
		return nil, fmt.Errorf("%w: top news is not configured", domain.ErrInvalidArgument)
	}
	editors, hot, err := k.deps.TopNews.FetchTopNews(ctx)
	if err != nil {
		return nil, err
	}

	all := make([]*domain.NewsItem, 0, len(editors)+len(hot))
	all = append(all, editors...)
	all = append(all, hot...)
	k.enrich(ctx, all)

	return &TopNews{
		EditorsChoice: news.FilterDated(editors, 0),
		HotStories:    news.FilterDated(hot, 0),
	}, nil
}

// FetchFeedNews reads a syndication feed and resolves the metadata of its
// entries.
func (k *Karpet) FetchFeedNews(ctx context.Context, feedURL string, limit int) ([]*domain.NewsItem, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-feed-news")
	defer span.End()

	if k.deps.Feeds == nil {
		return nil, fmt.Errorf("%w: feed reader is not configured", domain.ErrInvalidArgument)
	}
	items, err := k.deps.Feeds.FetchFeed(ctx, feedURL, limit)
	if err != nil {
		return nil, err
	}
	k.enrich(ctx, items)
	return news.FilterDated(items, limit), nil
}

// FetchFearGreedIndex returns the daily Fear & Greed readings between
// Start and End.
func (k *Karpet) FetchFearGreedIndex(ctx context.Context) ([]domain.SentimentPoint, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-fear-greed-index")
	defer span.End()

	if k.deps.Sentiment == nil {
		return nil, fmt.Errorf("%w: sentiment index is not configured", domain.ErrInvalidArgument)
	}
	// the index only serves the latest N days, so reach back to Start
	days := int(time.Since(k.start).Hours()/24) + 1
	points, err := k.deps.Sentiment.FetchIndex(ctx, days)
	if err != nil {
		return nil, err
	}

	var out []domain.SentimentPoint
	for _, p := range points {
		if p.Date.Before(k.start) || p.Date.After(k.end) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no sentiment readings between %s and %s", domain.ErrNoData,
			k.start.Format("2006-01-02"), k.end.Format("2006-01-02"))
	}
	return out, nil
}

func (k *Karpet) enrich(ctx context.Context, items []*domain.NewsItem) {
	if k.deps.Enricher == nil || len(items) == 0 {
		return
	}
	k.deps.Enricher.Enrich(ctx, items)
}

// GetBasicInfo returns market, community and developer stats of a coin.
func (k *Karpet) GetBasicInfo(ctx context.Context, ref CoinRef) (*domain.BasicInfo, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.get-basic-info")
	defer span.End()

	if err := ref.validate(); err != nil {
		return nil, err
	}
	coins, err := k.coins()
	if err != nil {
		return nil, err
	}
	id, err := k.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}

	if k.deps.Redis != nil {
		cached, err := k.getBasicInfoCache(ctx, id)
		if err != nil {
			log.Printf("redis cache read error: %v", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	info, err := coins.FetchBasicInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if k.deps.Redis != nil {
		if err := k.setBasicInfoCache(ctx, id, info); err != nil {
			log.Printf("redis cache write error for %s: %v", id, err)
		}
	}
	return info, nil
}

// GetCoinIDs returns every CoinGecko id registered under symbol.
func (k *Karpet) GetCoinIDs(ctx context.Context, symbol string) ([]string, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.get-coin-ids")
	defer span.End()

	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}
	coins, err := k.coins()
	if err != nil {
		return nil, err
	}
	return coins.CoinIDs(ctx, symbol)
}

// FetchCryptoLiveData returns recent OHLC candles, days <= 0 meaning one day.
func (k *Karpet) FetchCryptoLiveData(ctx context.Context, ref CoinRef, days int) ([]domain.OHLC, error) {
	ctx, span := k.tracer.Start(ctx, "karpet.fetch-crypto-live-data")
	defer span.End()

	if err := ref.validate(); err != nil {
		return nil, err
	}
	coins, err := k.coins()
	if err != nil {
		return nil, err
	}
	id, err := k.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultLiveDays
	}
	candles, err := coins.FetchOHLC(ctx, id, days)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no live data for %s", domain.ErrNoData, id)
	}
	return candles, nil
}

func (k *Karpet) coins() (CoinDirectory, error) {
	if k.deps.Coins == nil {
		return nil, fmt.Errorf("%w: coin directory is not configured", domain.ErrInvalidArgument)
	}
	return k.deps.Coins, nil
}

// resolveID maps a CoinRef onto a CoinGecko id. Symbols shared by several
// coins resolve to the first listed id.
func (k *Karpet) resolveID(ctx context.Context, ref CoinRef) (string, error) {
	if id := strings.TrimSpace(ref.ID); id != "" {
		return strings.ToLower(id), nil
	}
	coins, err := k.coins()
	if err != nil {
		return "", err
	}
	ids, err := coins.CoinIDs(ctx, ref.Symbol)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: couldn't resolve symbol %s into a coin id", domain.ErrNotFound, ref.Symbol)
	}
	if len(ids) > 1 {
		log.Printf("symbol %s is ambiguous (%s), using %s", ref.Symbol, strings.Join(ids, ", "), ids[0])
	}
	return ids[0], nil
}

func (k *Karpet) setBasicInfoCache(ctx context.Context, id string, info *domain.BasicInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return k.deps.Redis.Set(ctx, "karpet:info:"+id, data, basicInfoCacheTTL).Err()
}

func (k *Karpet) getBasicInfoCache(ctx context.Context, id string) (*domain.BasicInfo, error) {
	val, err := k.deps.Redis.Get(ctx, "karpet:info:"+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info domain.BasicInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return nil, err
	}
	return &info, nil
}
