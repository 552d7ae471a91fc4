package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"karpet/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	coincodexBaseURL    = "https://coincodex.com"
	coincodexDateLayout = "2006-01-02 15:04:05"
	defaultNewsLimit    = 10
)

// CoinCodexProvider lists news headlines per coin from coincodex.com.
type CoinCodexProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewCoinCodexProvider(tracer trace.Tracer) *CoinCodexProvider {
	return &CoinCodexProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: coincodexBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(5, time.Second),
	}
}

// FetchNews returns up to limit news items for symbol. Items carry the
// listing's URL, title and publish date.
func (p *CoinCodexProvider) FetchNews(ctx context.Context, symbol string, limit int) ([]*domain.NewsItem, error) {
	ctx, span := p.tracer.Start(ctx, "coincodex.fetch-news")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = defaultNewsLimit
	}

	u := fmt.Sprintf("%s/api/coincodexicos/get_news/%s/%d/1/", strings.TrimRight(p.baseURL, "/"), url.PathEscape(symbol), limit)
	body, err := getBody(ctx, p.client, p.limiter, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("fetch news for %s: %w", symbol, err)
	}

	var rows []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
		Date  string `json:"date"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, parseErr("coincodex news", err)
	}

	items := make([]*domain.NewsItem, 0, len(rows))
	for _, row := range rows {
		link := strings.TrimSpace(row.URL)
		if link == "" {
			continue
		}
		item := &domain.NewsItem{
			URL:   link,
			Title: domain.StringPtr(sanitizeText(row.Title, 300)),
		}
		if t, err := time.Parse(coincodexDateLayout, strings.TrimSpace(row.Date)); err == nil {
			t = t.UTC()
			item.Date = &t
		}
		items = append(items, item)
	}
	return items, nil
}
