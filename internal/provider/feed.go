package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"karpet/internal/domain"
	"karpet/internal/netguard"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/otel/trace"
)

const defaultFeedItems = 40

// FeedProvider reads RSS, Atom and JSON feeds into news items.
type FeedProvider struct {
	client *http.Client
	tracer trace.Tracer
}

func NewFeedProvider(tracer trace.Tracer) *FeedProvider {
	return &FeedProvider{
		client: netguard.NewClient(20 * time.Second),
		tracer: tracer,
	}
}

// FetchFeed returns up to maxItems entries of the feed at feedURL.
func (p *FeedProvider) FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]*domain.NewsItem, error) {
	ctx, span := p.tracer.Start(ctx, "feed.fetch")
	defer span.End()

	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("%w: feed url is required", domain.ErrInvalidArgument)
	}
	if _, err := netguard.ValidateURL(feedURL); err != nil {
		return nil, err
	}
	if maxItems <= 0 {
		maxItems = defaultFeedItems
	}

	body, err := getBody(ctx, p.client, nil, feedURL, map[string]string{
		"Accept":     "application/rss+xml, application/atom+xml, application/xml, text/xml, application/json",
		"User-Agent": browserUA,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, parseErr("feed "+feedURL, err)
	}

	items := make([]*domain.NewsItem, 0, min(maxItems, len(feed.Items)))
	for _, entry := range feed.Items {
		if len(items) >= maxItems {
			break
		}
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}
		item := &domain.NewsItem{
			URL:         link,
			Title:       domain.StringPtr(sanitizeText(entry.Title, 300)),
			Description: domain.StringPtr(sanitizeText(htmlText(entry.Description), 420)),
		}
		published := entry.PublishedParsed
		if published == nil {
			published = entry.UpdatedParsed
		}
		if published != nil {
			t := published.UTC()
			item.Date = &t
		}
		if entry.Image != nil {
			item.Image = domain.StringPtr(entry.Image.URL)
		}
		items = append(items, item)
	}
	return items, nil
}

// htmlText returns the text content of an HTML fragment with entities
// decoded.
func htmlText(in string) string {
	if strings.TrimSpace(in) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in))
	if err != nil {
		return in
	}
	return doc.Text()
}
