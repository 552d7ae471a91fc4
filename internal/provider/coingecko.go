package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"karpet/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	coingeckoBaseURL     = "https://api.coingecko.com/api/v3"
	coingeckoListSource  = "coingecko"
	coingeckoTickerPages = 5
)

// CoinListCache stores upstream coin directories between calls.
type CoinListCache interface {
	GetCoinList(ctx context.Context, source string) ([]domain.CoinListing, bool)
	SetCoinList(ctx context.Context, source string, coins []domain.CoinListing)
}

// CoinGeckoProvider fetches coin metadata, prices and history from the
// CoinGecko free API.
type CoinGeckoProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
	cache   CoinListCache
}

// NewCoinGeckoProvider creates a new provider with built-in rate limiting.
// Rate limited to 8 requests per minute (one token every 7.5 seconds).
// The coin list is memoized in cache when one is given.
func NewCoinGeckoProvider(tracer trace.Tracer, cache CoinListCache) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: coingeckoBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(8, 7500*time.Millisecond),
		cache:   cache,
	}
}

// FetchCoinList returns every coin CoinGecko knows about.
func (p *CoinGeckoProvider) FetchCoinList(ctx context.Context) ([]domain.CoinListing, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-coin-list")
	defer span.End()

	if p.cache != nil {
		if coins, ok := p.cache.GetCoinList(ctx, coingeckoListSource); ok {
			return coins, nil
		}
	}

	body, err := p.doRequest(ctx, p.baseURL+"/coins/list")
	if err != nil {
		return nil, fmt.Errorf("fetch coin list: %w", err)
	}

	var raw []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr("coin list", err)
	}

	coins := make([]domain.CoinListing, 0, len(raw))
	for _, c := range raw {
		coins = append(coins, domain.CoinListing{ID: c.ID, Symbol: strings.ToUpper(c.Symbol), Name: c.Name})
	}
	if p.cache != nil {
		p.cache.SetCoinList(ctx, coingeckoListSource, coins)
	}
	return coins, nil
}

// CoinIDs resolves a ticker symbol into every matching CoinGecko id.
func (p *CoinGeckoProvider) CoinIDs(ctx context.Context, symbol string) ([]string, error) {
	coins, err := p.FetchCoinList(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range coins {
		if strings.EqualFold(c.Symbol, symbol) {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// FetchHistory builds daily rows for [start, end] from market_chart/range.
func (p *CoinGeckoProvider) FetchHistory(ctx context.Context, id string, start, end time.Time) ([]domain.HistoricalPrice, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-history")
	defer span.End()
	span.SetAttributes(attribute.String("coin", id))

	u := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		p.baseURL, url.PathEscape(id), start.Unix(), end.Add(24*time.Hour-time.Second).Unix())
	raw, err := p.fetchMarketChart(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", id, err)
	}
	return buildDailyHistory(id, raw.Prices, raw.TotalVolumes, raw.MarketCaps), nil
}

// FetchExchanges lists the distinct exchange names trading the coin.
func (p *CoinGeckoProvider) FetchExchanges(ctx context.Context, id string) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-exchanges")
	defer span.End()

	seen := make(map[string]struct{})
	var exchanges []string
	for page := 1; page <= coingeckoTickerPages; page++ {
		u := fmt.Sprintf("%s/coins/%s/tickers?page=%d", p.baseURL, url.PathEscape(id), page)
		body, err := p.doRequest(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("fetch tickers for %s: %w", id, err)
		}
		var raw struct {
			Tickers []struct {
				Market struct {
					Name string `json:"name"`
				} `json:"market"`
			} `json:"tickers"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, parseErr("tickers", err)
		}
		if len(raw.Tickers) == 0 {
			break
		}
		for _, t := range raw.Tickers {
			name := strings.TrimSpace(t.Market.Name)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			exchanges = append(exchanges, name)
		}
	}
	return exchanges, nil
}

// FetchBasicInfo combines coin detail with a year of daily closes.
func (p *CoinGeckoProvider) FetchBasicInfo(ctx context.Context, id string) (*domain.BasicInfo, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-basic-info")
	defer span.End()

	u := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&market_data=true&community_data=true&developer_data=true&sparkline=false",
		p.baseURL, url.PathEscape(id))
	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch coin %s: %w", id, err)
	}

	var raw struct {
		ID            string `json:"id"`
		Symbol        string `json:"symbol"`
		Name          string `json:"name"`
		MarketCapRank int    `json:"market_cap_rank"`
		MarketData    struct {
			CurrentPrice map[string]float64 `json:"current_price"`
			MarketCap    map[string]float64 `json:"market_cap"`
		} `json:"market_data"`
		CommunityData struct {
			RedditAveragePosts48h    float64 `json:"reddit_average_posts_48h"`
			RedditAverageComments48h float64 `json:"reddit_average_comments_48h"`
			RedditSubscribers        int     `json:"reddit_subscribers"`
			RedditAccountsActive48h  float64 `json:"reddit_accounts_active_48h"`
		} `json:"community_data"`
		DeveloperData struct {
			Forks                   int `json:"forks"`
			Stars                   int `json:"stars"`
			TotalIssues             int `json:"total_issues"`
			ClosedIssues            int `json:"closed_issues"`
			PullRequestContributors int `json:"pull_request_contributors"`
			CommitCount4Weeks       int `json:"commit_count_4_weeks"`
		} `json:"developer_data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr("coin detail", err)
	}

	info := &domain.BasicInfo{
		ID:                       raw.ID,
		Name:                     raw.Name,
		Symbol:                   strings.ToUpper(raw.Symbol),
		CurrentPrice:             raw.MarketData.CurrentPrice["usd"],
		MarketCap:                int64(raw.MarketData.MarketCap["usd"]),
		Rank:                     raw.MarketCapRank,
		RedditAveragePosts48h:    raw.CommunityData.RedditAveragePosts48h,
		RedditAverageComments48h: raw.CommunityData.RedditAverageComments48h,
		RedditSubscribers:        raw.CommunityData.RedditSubscribers,
		RedditAccountsActive48h:  raw.CommunityData.RedditAccountsActive48h,
		Forks:                    raw.DeveloperData.Forks,
		Stars:                    raw.DeveloperData.Stars,
		TotalIssues:              raw.DeveloperData.TotalIssues,
		ClosedIssues:             raw.DeveloperData.ClosedIssues,
		OpenIssues:               raw.DeveloperData.TotalIssues - raw.DeveloperData.ClosedIssues,
		PullRequestContributors:  raw.DeveloperData.PullRequestContributors,
		CommitCount4Weeks:        raw.DeveloperData.CommitCount4Weeks,
	}

	chart, err := p.fetchMarketChart(ctx, fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=365&interval=daily",
		p.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, fmt.Errorf("fetch yearly chart for %s: %w", id, err)
	}
	info.YearLow, info.YearHigh, info.YoYChange = yearStats(chart.Prices)

	return info, nil
}

// FetchOHLC returns recent candles; days selects CoinGecko's granularity.
func (p *CoinGeckoProvider) FetchOHLC(ctx context.Context, id string, days int) ([]domain.OHLC, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-ohlc")
	defer span.End()

	if days <= 0 {
		days = 1
	}
	u := fmt.Sprintf("%s/coins/%s/ohlc?vs_currency=usd&days=%d", p.baseURL, url.PathEscape(id), days)
	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch ohlc for %s: %w", id, err)
	}

	// Response shape: [[1714521600000, 60000.1, 60500.2, 59800.0, 60321.5], ...]
	var raw [][]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr("ohlc", err)
	}

	out := make([]domain.OHLC, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		out = append(out, domain.OHLC{
			Time:  time.UnixMilli(int64(row[0])).UTC(),
			Open:  row[1],
			High:  row[2],
			Low:   row[3],
			Close: row[4],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

type marketChart struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

func (p *CoinGeckoProvider) fetchMarketChart(ctx context.Context, u string) (*marketChart, error) {
	body, err := p.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	var raw marketChart
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr("market chart", err)
	}
	return &raw, nil
}

func (p *CoinGeckoProvider) doRequest(ctx context.Context, u string) ([]byte, error) {
	return getBody(ctx, p.client, p.limiter, u, map[string]string{"Accept": "application/json"})
}

type seriesPoint struct {
	ts  int64
	val float64
}

func toSeriesPoints(raw [][]float64) []seriesPoint {
	out := make([]seriesPoint, 0, len(raw))
	for _, v := range raw {
		if len(v) >= 2 {
			out = append(out, seriesPoint{ts: int64(v[0]), val: v[1]})
		}
	}
	return out
}

// buildDailyHistory buckets market_chart prices into UTC days. Volume and
// market cap come from the sample closest to each day's end.
func buildDailyHistory(coin string, prices, volumes, caps [][]float64) []domain.HistoricalPrice {
	if len(prices) == 0 {
		return nil
	}

	volPoints := toSeriesPoints(volumes)
	capPoints := toSeriesPoints(caps)

	sort.Slice(prices, func(i, j int) bool {
		return prices[i][0] < prices[j][0]
	})

	type bucket struct {
		open, high, low, close float64
	}
	buckets := make(map[int64]*bucket)

	for _, pt := range prices {
		if len(pt) < 2 {
			continue
		}
		price := pt[1]
		dayTS := time.UnixMilli(int64(pt[0])).UTC().Truncate(24 * time.Hour).UnixMilli()

		b, exists := buckets[dayTS]
		if !exists {
			buckets[dayTS] = &bucket{open: price, high: price, low: price, close: price}
			continue
		}
		b.high = math.Max(b.high, price)
		b.low = math.Min(b.low, price)
		b.close = price
	}

	days := make([]int64, 0, len(buckets))
	for k := range buckets {
		days = append(days, k)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	rows := make([]domain.HistoricalPrice, 0, len(days))
	for _, k := range days {
		b := buckets[k]
		dayEnd := k + int64(24*time.Hour/time.Millisecond)
		rows = append(rows, domain.HistoricalPrice{
			Coin:      coin,
			Date:      time.UnixMilli(k).UTC(),
			Open:      b.open,
			High:      b.high,
			Low:       b.low,
			Close:     b.close,
			Volume:    findClosest(volPoints, dayEnd),
			MarketCap: findClosest(capPoints, dayEnd),
		})
	}
	return rows
}

func findClosest(points []seriesPoint, targetMs int64) float64 {
	if len(points) == 0 {
		return 0
	}
	closest := points[0]
	minDiff := int64(math.MaxInt64)
	for _, v := range points {
		diff := v.ts - targetMs
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			closest = v
		}
	}
	return closest.val
}

// yearStats returns the low, high and first-to-last percent change.
func yearStats(prices [][]float64) (low, high, change float64) {
	points := toSeriesPoints(prices)
	if len(points) == 0 {
		return 0, 0, 0
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ts < points[j].ts })
	low, high = points[0].val, points[0].val
	for _, p := range points[1:] {
		low = math.Min(low, p.val)
		high = math.Max(high, p.val)
	}
	first, last := points[0].val, points[len(points)-1].val
	if first != 0 {
		change = (last - first) / first * 100
	}
	return low, high, change
}
