package news

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"karpet/internal/domain"
	"karpet/internal/netguard"

	readability "github.com/go-shiori/go-readability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 8
	DefaultTimeout = 15 * time.Second

	maxPageBytes = 4 << 20
	userAgent    = "Mozilla/5.0 (compatible; karpet/1.0)"
)

type Config struct {
	Workers        int
	Timeout        time.Duration
	ExtractContent bool
	// AllowPrivateNetworks lets pages on loopback and private addresses be
	// fetched. News URLs come from third parties, keep it off in production.
	AllowPrivateNetworks bool
}

// Enricher fills news items with metadata scraped from their pages.
type Enricher struct {
	client *http.Client
	tracer trace.Tracer
	cfg    Config
}

func NewEnricher(tracer trace.Tracer, cfg Config) *Enricher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := netguard.NewClient(cfg.Timeout)
	if cfg.AllowPrivateNetworks {
		client = &http.Client{}
	}
	return &Enricher{
		client: client,
		tracer: tracer,
		cfg:    cfg,
	}
}

// Enrich fetches every item's page with at most cfg.Workers requests in
// flight and writes the parsed metadata back into the item. A failed
// fetch leaves its item untouched and does not affect the others.
func (e *Enricher) Enrich(ctx context.Context, items []*domain.NewsItem) {
	ctx, span := e.tracer.Start(ctx, "news.enrich")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	for _, item := range items {
		if item == nil || item.URL == "" {
			continue
		}
		g.Go(func() error {
			if err := e.enrichOne(ctx, item); err != nil {
				log.Printf("news enrich %s: %v", item.URL, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Enricher) enrichOne(ctx context.Context, item *domain.NewsItem) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := e.fetch(ctx, item.URL)
	if err != nil {
		return err
	}

	meta, err := ParseMetadata(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	meta.apply(item)

	if e.cfg.ExtractContent {
		pageURL, _ := url.Parse(item.URL)
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err != nil {
			return fmt.Errorf("readability extraction failed: %w", err)
		}
		item.Content = domain.StringPtr(article.TextContent)
	}
	return nil
}

func (e *Enricher) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	return body, nil
}

// FilterDated drops items without a resolved date, keeping the relative
// order of the rest, and caps the result at limit when limit > 0.
func FilterDated(items []*domain.NewsItem, limit int) []*domain.NewsItem {
	out := make([]*domain.NewsItem, 0, len(items))
	for _, item := range items {
		if item == nil || item.Date == nil {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
