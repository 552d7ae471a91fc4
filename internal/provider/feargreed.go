package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"karpet/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const fearGreedBaseURL = "https://api.alternative.me"

// FearGreedProvider reads the alternative.me crypto Fear & Greed index.
type FearGreedProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewFearGreedProvider(tracer trace.Tracer) *FearGreedProvider {
	return &FearGreedProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: fearGreedBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(5, time.Second),
	}
}

// FetchIndex returns the latest days readings, oldest first. Zero days
// returns the whole history.
func (p *FearGreedProvider) FetchIndex(ctx context.Context, days int) ([]domain.SentimentPoint, error) {
	ctx, span := p.tracer.Start(ctx, "feargreed.fetch-index")
	defer span.End()
	span.SetAttributes(attribute.Int("days", days))

	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", domain.ErrInvalidArgument)
	}

	u := fmt.Sprintf("%s/fng/?limit=%d", strings.TrimRight(p.baseURL, "/"), days)
	body, err := getBody(ctx, p.client, p.limiter, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("fetch fear & greed index: %w", err)
	}

	var payload struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
			Timestamp      string `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, parseErr("fear & greed response", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("%w: fear & greed response has no rows", domain.ErrNoData)
	}

	points := make([]domain.SentimentPoint, 0, len(payload.Data))
	for _, row := range payload.Data {
		value, err := strconv.Atoi(strings.TrimSpace(row.Value))
		if err != nil {
			return nil, parseErr("fear & greed value", err)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(row.Timestamp), 10, 64)
		if err != nil {
			return nil, parseErr("fear & greed timestamp", err)
		}
		if ts > 1_000_000_000_000 {
			ts = ts / 1000
		}
		points = append(points, domain.SentimentPoint{
			Date:           time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Value:          value,
			Classification: row.Classification,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
