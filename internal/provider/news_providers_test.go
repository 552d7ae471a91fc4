package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"karpet/internal/domain"
)

func TestCoinCodexFetchNews(t *testing.T) {
	t.Parallel()

	p := NewCoinCodexProvider(testTracer)
	p.baseURL = "http://example"
	p.limiter = NewRateLimiter(10, time.Millisecond)
	p.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/coincodexicos/get_news/BTC/3/1/" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, []map[string]string{
			{"url": "https://news.example/a", "title": "  Bitcoin\nrallies ", "date": "2024-05-01 08:30:00"},
			{"url": "", "title": "no link"},
			{"url": "https://news.example/b", "title": "", "date": "garbage"},
		}), nil
	})}

	items, err := p.FetchNews(context.Background(), "btc", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title == nil || *items[0].Title != "Bitcoin rallies" {
		t.Fatalf("unexpected title: %v", items[0].Title)
	}
	if items[0].Date == nil || !items[0].Date.Equal(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", items[0].Date)
	}
	if items[1].Title != nil || items[1].Date != nil {
		t.Fatalf("expected unresolved fields to stay nil: %+v", items[1])
	}
}

func TestCoinCodexDefaultLimit(t *testing.T) {
	t.Parallel()

	p := NewCoinCodexProvider(testTracer)
	p.baseURL = "http://example"
	p.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/coincodexicos/get_news/ETH/10/1/" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, []any{}), nil
	})}

	items, err := p.FetchNews(context.Background(), "eth", 0)
	if err != nil || len(items) != 0 {
		t.Fatalf("unexpected result: %v %v", items, err)
	}
}

const frontPageHTML = `<html><body>
<section data-testid="editors-choice">
  <a href="/news/first-story">First</a>
  <a href="/news/first-story">First again</a>
  <a href="https://cointelegraph.com/news/second-story">Second</a>
  <a href="#top">skip</a>
</section>
<div class="hot-stories">
  <a href="/news/hot-one">Hot</a>
</div>
</body></html>`

func TestCoinTelegraphFetchTopNews(t *testing.T) {
	t.Parallel()

	p := NewCoinTelegraphProvider(testTracer)
	p.baseURL = "https://cointelegraph.com"
	p.limiter = NewRateLimiter(10, time.Millisecond)
	p.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("User-Agent") == "" {
			t.Fatal("expected a user agent")
		}
		return textResponse(http.StatusOK, frontPageHTML), nil
	})}

	editors, hot, err := p.FetchTopNews(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(editors) != 2 || editors[0].URL != "https://cointelegraph.com/news/first-story" || editors[1].URL != "https://cointelegraph.com/news/second-story" {
		t.Fatalf("unexpected editors choice: %+v", editors)
	}
	if len(hot) != 1 || hot[0].URL != "https://cointelegraph.com/news/hot-one" || hot[0].Title != nil {
		t.Fatalf("unexpected hot stories: %+v", hot)
	}
}

func TestFeedFetchFeed(t *testing.T) {
	t.Parallel()

	p := NewFeedProvider(testTracer)
	p.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		xml := `<?xml version="1.0"?><rss version="2.0"><channel><title>Example Feed</title>` +
			`<item><title>ETH adoption rises</title><link>https://news.example/eth</link><description><![CDATA[<p>Ethereum growth continues</p>]]></description><guid>guid-1</guid><pubDate>Fri, 13 Feb 2026 10:00:00 +0000</pubDate></item>` +
			`<item><title>No link</title></item>` +
			`<item><title>Second</title><link>https://news.example/two</link></item>` +
			`</channel></rss>`
		return textResponse(http.StatusOK, xml), nil
	})}

	items, err := p.FetchFeed(context.Background(), "https://news.example/rss", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	item := items[0]
	if item.Description == nil || *item.Description != "Ethereum growth continues" {
		t.Fatalf("expected html stripped description, got %v", item.Description)
	}
	if item.Date == nil || !item.Date.Equal(time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", item.Date)
	}
	if items[1].Date != nil {
		t.Fatalf("expected undated item, got %v", items[1].Date)
	}
}

func TestHTMLTextDecodesEntities(t *testing.T) {
	cases := map[string]string{
		"<p>Fish &amp; Chips &#8217;s rally: 1 &lt; 2</p>": "Fish & Chips \u2019s rally: 1 < 2",
		"BTC < 100k <b>again</b>":                          "BTC < 100k again",
		"   ":                                              "",
	}
	for in, want := range cases {
		if got := htmlText(in); got != want {
			t.Errorf("htmlText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFeedErrors(t *testing.T) {
	t.Parallel()

	p := NewFeedProvider(testTracer)
	p.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/missing" {
			return textResponse(http.StatusNotFound, "gone"), nil
		}
		return textResponse(http.StatusOK, "this is not a feed"), nil
	})}

	if _, err := p.FetchFeed(context.Background(), "", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	for _, blocked := range []string{"http://127.0.0.1:6379/", "http://169.254.169.254/latest/meta-data/", "file:///etc/passwd"} {
		if _, err := p.FetchFeed(context.Background(), blocked, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", blocked, err)
		}
	}
	if _, err := p.FetchFeed(context.Background(), "https://news.example/missing", 0); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, err := p.FetchFeed(context.Background(), "https://news.example/rss", 0); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
