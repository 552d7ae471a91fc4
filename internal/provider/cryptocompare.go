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
	cryptocompareBaseURL  = "https://min-api.cryptocompare.com"
	cryptocompareMaxLimit = 2000
)

// CryptoCompareProvider reads daily OHLCV history from CryptoCompare.
type CryptoCompareProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewCryptoCompareProvider(tracer trace.Tracer, apiKey string) *CryptoCompareProvider {
	return &CryptoCompareProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: cryptocompareBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		tracer:  tracer,
		limiter: NewRateLimiter(20, time.Second),
	}
}

// FetchHistory returns daily rows for symbol between start and end,
// oldest first.
func (p *CryptoCompareProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]domain.HistoricalPrice, error) {
	ctx, span := p.tracer.Start(ctx, "cryptocompare.fetch-history")
	defer span.End()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidArgument)
	}

	limit := int(end.Sub(start).Hours()/24) + 1
	if limit <= 0 || limit > cryptocompareMaxLimit {
		limit = cryptocompareMaxLimit
	}

	q := url.Values{}
	q.Set("fsym", symbol)
	q.Set("tsym", "USD")
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("toTs", fmt.Sprintf("%d", end.Unix()))
	headers := map[string]string{"Accept": "application/json"}
	if p.apiKey != "" {
		headers["Authorization"] = "Apikey " + p.apiKey
	}

	body, err := getBody(ctx, p.client, p.limiter, p.baseURL+"/data/v2/histoday?"+q.Encode(), headers)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}

	var result struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
		Data     struct {
			Data []struct {
				Time     int64   `json:"time"`
				Open     float64 `json:"open"`
				High     float64 `json:"high"`
				Low      float64 `json:"low"`
				Close    float64 `json:"close"`
				VolumeTo float64 `json:"volumeto"`
			} `json:"Data"`
		} `json:"Data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, parseErr("cryptocompare history", err)
	}
	if result.Response == "Error" {
		return nil, fmt.Errorf("%w: cryptocompare: %s", domain.ErrNoData, result.Message)
	}

	from := start.UTC().Truncate(24 * time.Hour)
	rows := make([]domain.HistoricalPrice, 0, len(result.Data.Data))
	for _, d := range result.Data.Data {
		day := time.Unix(d.Time, 0).UTC()
		if day.Before(from) || day.After(end) || d.Close <= 0 {
			continue
		}
		rows = append(rows, domain.HistoricalPrice{
			Coin:   symbol,
			Date:   day,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.VolumeTo,
		})
	}
	return rows, nil
}
