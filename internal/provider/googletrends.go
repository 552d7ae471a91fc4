package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"karpet/internal/domain"
	"karpet/internal/trends"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	googleTrendsBaseURL = "https://trends.google.com"
	timeseriesWidgetID  = "TIMESERIES"
)

// GoogleTrendsProvider queries the unofficial Google Trends API used by the
// trends.google.com explore page. Each query is a two step exchange: the
// explore call hands out a widget token, the multiline call returns rows.
type GoogleTrendsProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter

	cookieOnce sync.Once
}

var _ trends.Provider = (*GoogleTrendsProvider)(nil)

func NewGoogleTrendsProvider(tracer trace.Tracer) *GoogleTrendsProvider {
	jar, _ := cookiejar.New(nil)
	return &GoogleTrendsProvider{
		client:  &http.Client{Timeout: 30 * time.Second, Jar: jar},
		baseURL: googleTrendsBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(1, time.Second),
	}
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Time    string `json:"time"`
	Geo     string `json:"geo"`
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

// InterestOverTime returns the rows of one timeframe, normalized by Google
// so that the window maximum is 100.
func (p *GoogleTrendsProvider) InterestOverTime(ctx context.Context, q trends.Query) ([]domain.TrendPoint, error) {
	ctx, span := p.tracer.Start(ctx, "googletrends.interest-over-time")
	defer span.End()
	span.SetAttributes(attribute.String("trends.timeframe", q.Timeframe))

	if len(q.Keywords) == 0 {
		return nil, fmt.Errorf("%w: at least one keyword is required", domain.ErrInvalidArgument)
	}
	p.warmCookies(ctx)

	widget, err := p.explore(ctx, q)
	if err != nil {
		return nil, err
	}

	params := p.baseParams(q)
	params.Set("req", string(widget.Request))
	params.Set("token", widget.Token)
	body, err := getBody(ctx, p.client, p.limiter, p.baseURL+"/trends/api/widgetdata/multiline?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch interest over time: %w", err)
	}

	var payload struct {
		Default struct {
			TimelineData []struct {
				Time      string    `json:"time"`
				Value     []float64 `json:"value"`
				IsPartial bool      `json:"isPartial"`
			} `json:"timelineData"`
		} `json:"default"`
	}
	if err := json.Unmarshal(stripJSONPrefix(body), &payload); err != nil {
		return nil, parseErr("interest over time", err)
	}

	points := make([]domain.TrendPoint, 0, len(payload.Default.TimelineData))
	for _, row := range payload.Default.TimelineData {
		sec, err := strconv.ParseInt(row.Time, 10, 64)
		if err != nil {
			return nil, parseErr("timeline timestamp", err)
		}
		values := make(map[string]float64, len(q.Keywords))
		for i, kw := range q.Keywords {
			if i < len(row.Value) {
				values[kw] = row.Value[i]
			}
		}
		points = append(points, domain.TrendPoint{
			Date:      time.Unix(sec, 0).UTC(),
			IsPartial: row.IsPartial,
			Values:    values,
		})
	}
	return points, nil
}

type trendsWidget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

func (p *GoogleTrendsProvider) explore(ctx context.Context, q trends.Query) (trendsWidget, error) {
	req := exploreRequest{Category: q.Category, Property: q.Property}
	for _, kw := range q.Keywords {
		req.ComparisonItem = append(req.ComparisonItem, comparisonItem{Keyword: kw, Time: q.Timeframe, Geo: q.Geo})
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return trendsWidget{}, err
	}

	params := p.baseParams(q)
	params.Set("req", string(encoded))
	body, err := getBody(ctx, p.client, p.limiter, p.baseURL+"/trends/api/explore?"+params.Encode(), nil)
	if err != nil {
		return trendsWidget{}, fmt.Errorf("explore trends: %w", err)
	}

	var payload struct {
		Widgets []trendsWidget `json:"widgets"`
	}
	if err := json.Unmarshal(stripJSONPrefix(body), &payload); err != nil {
		return trendsWidget{}, parseErr("explore response", err)
	}
	for _, w := range payload.Widgets {
		if w.ID == timeseriesWidgetID {
			return w, nil
		}
	}
	return trendsWidget{}, fmt.Errorf("%w: explore response has no %s widget", domain.ErrParse, timeseriesWidgetID)
}

func (p *GoogleTrendsProvider) baseParams(q trends.Query) url.Values {
	params := url.Values{}
	lang := q.Language
	if lang == "" {
		lang = "en-US"
	}
	params.Set("hl", lang)
	params.Set("tz", strconv.Itoa(q.TZ))
	return params
}

// warmCookies loads the NID cookie the API expects. Failures are ignored,
// the following calls report their own errors.
func (p *GoogleTrendsProvider) warmCookies(ctx context.Context) {
	p.cookieOnce.Do(func() {
		_, _ = getBody(ctx, p.client, nil, p.baseURL+"/?geo=US", map[string]string{"User-Agent": browserUA})
	})
}

// stripJSONPrefix drops the anti-hijacking prefix (")]}'") Google puts in
// front of its JSON bodies.
func stripJSONPrefix(body []byte) []byte {
	if idx := bytes.IndexByte(body, '{'); idx >= 0 {
		return body[idx:]
	}
	return []byte(strings.TrimSpace(string(body)))
}
