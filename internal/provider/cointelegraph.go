package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"karpet/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"
)

const (
	cointelegraphBaseURL = "https://cointelegraph.com"

	editorsChoiceSelector = `[data-testid="editors-choice"] a[href], .editors-choice a[href]`
	hotStoriesSelector    = `[data-testid="hot-stories"] a[href], .hot-stories a[href]`
)

// CoinTelegraphProvider scrapes the curated story lists from the
// cointelegraph.com front page.
type CoinTelegraphProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

func NewCoinTelegraphProvider(tracer trace.Tracer) *CoinTelegraphProvider {
	return &CoinTelegraphProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: cointelegraphBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(2, time.Second),
	}
}

// FetchTopNews returns the editors' choice and hot stories lists. Items
// only carry a URL.
func (p *CoinTelegraphProvider) FetchTopNews(ctx context.Context) (editorsChoice, hotStories []*domain.NewsItem, err error) {
	ctx, span := p.tracer.Start(ctx, "cointelegraph.fetch-top-news")
	defer span.End()

	base, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, nil, err
	}

	body, err := getBody(ctx, p.client, p.limiter, p.baseURL+"/", map[string]string{
		"Accept":     "text/html",
		"User-Agent": browserUA,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch cointelegraph front page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, parseErr("cointelegraph front page", err)
	}

	return collectLinks(doc, editorsChoiceSelector, base), collectLinks(doc, hotStoriesSelector, base), nil
}

func collectLinks(doc *goquery.Document, selector string, base *url.URL) []*domain.NewsItem {
	seen := make(map[string]struct{})
	var items []*domain.NewsItem
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		items = append(items, &domain.NewsItem{URL: abs})
	})
	return items
}
