package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"karpet/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"
)

const (
	coinmarketcapBaseURL     = "https://coinmarketcap.com"
	coinmarketcapSearchURL   = "https://s2.coinmarketcap.com/generated/search/quick_search.json"
	coinmarketcapListSource  = "coinmarketcap"
	coinmarketcapQueryLayout = "20060102"
)

var headerCleaner = regexp.MustCompile(`[^a-z]`)

// CoinMarketCapProvider scrapes coinmarketcap.com pages. Coin symbols are
// resolved into URL slugs through the quick search directory.
type CoinMarketCapProvider struct {
	client    *http.Client
	baseURL   string
	searchURL string
	tracer    trace.Tracer
	limiter   *RateLimiter
	cache     CoinListCache
}

func NewCoinMarketCapProvider(tracer trace.Tracer, cache CoinListCache) *CoinMarketCapProvider {
	return &CoinMarketCapProvider{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   coinmarketcapBaseURL,
		searchURL: coinmarketcapSearchURL,
		tracer:    tracer,
		limiter:   NewRateLimiter(2, 2*time.Second),
		cache:     cache,
	}
}

// FetchQuickSearch downloads the coin directory used to resolve slugs.
func (p *CoinMarketCapProvider) FetchQuickSearch(ctx context.Context) ([]domain.CoinListing, error) {
	ctx, span := p.tracer.Start(ctx, "coinmarketcap.fetch-quick-search")
	defer span.End()

	if p.cache != nil {
		if coins, ok := p.cache.GetCoinList(ctx, coinmarketcapListSource); ok {
			return coins, nil
		}
	}

	body, err := getBody(ctx, p.client, p.limiter, p.searchURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("fetch quick search: %w", err)
	}

	var raw []struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
		Rank   int    `json:"rank"`
		Slug   string `json:"slug"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseErr("quick search", err)
	}

	coins := make([]domain.CoinListing, 0, len(raw))
	for _, c := range raw {
		coins = append(coins, domain.CoinListing{ID: c.Slug, Symbol: strings.ToUpper(c.Symbol), Name: c.Name, Rank: c.Rank})
	}
	if p.cache != nil {
		p.cache.SetCoinList(ctx, coinmarketcapListSource, coins)
	}
	return coins, nil
}

// Slug resolves a ticker symbol into a coinmarketcap.com URL slug.
func (p *CoinMarketCapProvider) Slug(ctx context.Context, symbol string) (string, error) {
	coins, err := p.FetchQuickSearch(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range coins {
		if strings.EqualFold(c.Symbol, symbol) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("%w: couldn't resolve coin symbol %s into slug", domain.ErrNotFound, symbol)
}

// FetchHistory scrapes the historical data table for symbol. Rows are keyed
// by the upper case symbol and returned oldest first.
func (p *CoinMarketCapProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]domain.HistoricalPrice, error) {
	ctx, span := p.tracer.Start(ctx, "coinmarketcap.fetch-history")
	defer span.End()

	slug, err := p.Slug(ctx, symbol)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/currencies/%s/historical-data/?start=%s&end=%s", p.baseURL, url.PathEscape(slug),
		start.Format(coinmarketcapQueryLayout), end.Format(coinmarketcapQueryLayout))
	doc, err := p.fetchDocument(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", slug, err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: historical data table not found for %s", domain.ErrParse, slug)
	}

	columns := make(map[string]int)
	table.Find("thead th").Each(func(i int, s *goquery.Selection) {
		columns[headerCleaner.ReplaceAllString(strings.ToLower(s.Text()), "")] = i
	})
	if _, ok := columns["date"]; !ok {
		return nil, fmt.Errorf("%w: historical data table has no date column", domain.ErrParse)
	}

	var rows []domain.HistoricalPrice
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		cell := func(name string) string {
			idx, ok := columns[name]
			if !ok {
				return ""
			}
			return strings.TrimSpace(cells.Eq(idx).Text())
		}
		date, err := parseTableDate(cell("date"))
		if err != nil {
			return
		}
		rows = append(rows, domain.HistoricalPrice{
			Coin:      strings.ToUpper(symbol),
			Date:      date,
			Open:      parseNumber(cell("open")),
			High:      parseNumber(cell("high")),
			Low:       parseNumber(cell("low")),
			Close:     parseNumber(cell("close")),
			Volume:    parseNumber(cell("volume")),
			MarketCap: parseNumber(cell("marketcap")),
		})
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// FetchExchanges lists the sources of the coin's markets table.
func (p *CoinMarketCapProvider) FetchExchanges(ctx context.Context, symbol string) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "coinmarketcap.fetch-exchanges")
	defer span.End()

	slug, err := p.Slug(ctx, symbol)
	if err != nil {
		return nil, err
	}

	doc, err := p.fetchDocument(ctx, fmt.Sprintf("%s/currencies/%s/", p.baseURL, url.PathEscape(slug)))
	if err != nil {
		return nil, fmt.Errorf("fetch markets for %s: %w", slug, err)
	}

	table := doc.Find("table#markets-table")
	sourceIdx := -1
	table.Find("thead th").Each(func(i int, s *goquery.Selection) {
		if strings.EqualFold(strings.TrimSpace(s.Text()), "source") {
			sourceIdx = i
		}
	})
	if sourceIdx < 0 {
		return nil, fmt.Errorf("%w: markets table not found for %s", domain.ErrParse, slug)
	}

	seen := make(map[string]struct{})
	var exchanges []string
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		name := sanitizeText(tr.Find("td").Eq(sourceIdx).Text(), 120)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		exchanges = append(exchanges, name)
	})
	return exchanges, nil
}

func (p *CoinMarketCapProvider) fetchDocument(ctx context.Context, u string) (*goquery.Document, error) {
	body, err := getBody(ctx, p.client, p.limiter, u, map[string]string{
		"Accept":     "text/html",
		"User-Agent": browserUA,
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, parseErr("html document", err)
	}
	return doc, nil
}

func parseTableDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"Jan 02, 2006", "Jan 2, 2006", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}
