package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"karpet/internal/domain"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

const articleHTML = `<!doctype html>
<html><head>
<meta property="og:title" content="%s">
<meta property="og:description" content="Markets rally">
<meta property="og:image" content="https://img.example/%s.png">
<meta property="article:published_time" content="2024-05-01T10:30:00+02:00">
</head><body><article><h1>Rally</h1><p>Bitcoin climbed again today as markets rallied across the board, with traders pointing to strong inflows, rising volumes and renewed interest from institutional desks.</p><p>Analysts said the move extended a week of gains, and several large exchanges reported record activity while funding rates stayed elevated through the session.</p></article></body></html>`

const undatedHTML = `<html><head><meta property="og:title" content="No date"></head><body></body></html>`

func newNewsServer(t *testing.T, inFlight *int32, peak *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			n := atomic.AddInt32(inFlight, 1)
			defer atomic.AddInt32(inFlight, -1)
			for {
				old := atomic.LoadInt32(peak)
				if n <= old || atomic.CompareAndSwapInt32(peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/slow"):
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		case strings.HasPrefix(r.URL.Path, "/undated"):
			fmt.Fprint(w, undatedHTML)
		case strings.HasPrefix(r.URL.Path, "/missing"):
			http.NotFound(w, r)
		default:
			name := strings.TrimPrefix(r.URL.Path, "/")
			fmt.Fprintf(w, articleHTML, "Title "+name, name)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnrichIsolatesFailures(t *testing.T) {
	srv := newNewsServer(t, nil, nil)
	e := NewEnricher(testTracer, Config{Workers: 4, Timeout: 100 * time.Millisecond, AllowPrivateNetworks: true})

	items := []*domain.NewsItem{
		{URL: srv.URL + "/a"},
		{URL: srv.URL + "/slow"},
		{URL: srv.URL + "/b"},
		{URL: srv.URL + "/missing"},
	}
	e.Enrich(context.Background(), items)

	require.Len(t, items, 4)
	for _, i := range []int{0, 2} {
		item := items[i]
		require.NotNil(t, item.Title)
		require.NotNil(t, item.Description)
		require.NotNil(t, item.Image)
		require.NotNil(t, item.Date)
		require.Equal(t, "Markets rally", *item.Description)
	}
	require.Equal(t, "Title a", *items[0].Title)
	require.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), items[0].Date.UTC())

	for _, i := range []int{1, 3} {
		item := items[i]
		require.Nil(t, item.Title)
		require.Nil(t, item.Description)
		require.Nil(t, item.Image)
		require.Nil(t, item.Date)
	}
}

func TestEnrichRespectsWorkerLimit(t *testing.T) {
	var inFlight, peak int32
	srv := newNewsServer(t, &inFlight, &peak)
	e := NewEnricher(testTracer, Config{Workers: 2, Timeout: time.Second, AllowPrivateNetworks: true})

	items := make([]*domain.NewsItem, 8)
	for i := range items {
		items[i] = &domain.NewsItem{URL: fmt.Sprintf("%s/n%d", srv.URL, i)}
	}
	e.Enrich(context.Background(), items)

	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	for _, item := range items {
		require.NotNil(t, item.Date)
	}
}

func TestEnrichExtractsContent(t *testing.T) {
	srv := newNewsServer(t, nil, nil)
	e := NewEnricher(testTracer, Config{Timeout: time.Second, ExtractContent: true, AllowPrivateNetworks: true})

	items := []*domain.NewsItem{{URL: srv.URL + "/content"}}
	e.Enrich(context.Background(), items)

	require.NotNil(t, items[0].Content)
	require.Contains(t, *items[0].Content, "Bitcoin climbed")
}

func TestEnrichKeepsListingFieldsWhenTagsMissing(t *testing.T) {
	srv := newNewsServer(t, nil, nil)
	e := NewEnricher(testTracer, Config{Timeout: time.Second, AllowPrivateNetworks: true})

	listed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []*domain.NewsItem{{URL: srv.URL + "/undated", Date: &listed}}
	e.Enrich(context.Background(), items)

	require.Equal(t, "No date", *items[0].Title)
	require.Equal(t, listed, *items[0].Date)
	require.Nil(t, items[0].Image)
}

func TestEnrichRefusesPrivateAddressesByDefault(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprintf(w, articleHTML, "internal", "internal")
	}))
	t.Cleanup(srv.Close)

	e := NewEnricher(testTracer, Config{Timeout: time.Second})
	items := []*domain.NewsItem{{URL: srv.URL + "/admin"}}
	e.Enrich(context.Background(), items)

	require.Zero(t, atomic.LoadInt32(&hits))
	require.Nil(t, items[0].Title)
	require.Nil(t, items[0].Date)
}

func TestFilterDated(t *testing.T) {
	d := time.Now()
	items := []*domain.NewsItem{
		{URL: "1", Date: &d},
		{URL: "2"},
		{URL: "3", Date: &d},
		nil,
		{URL: "4", Date: &d},
	}

	all := FilterDated(items, 0)
	require.Len(t, all, 3)
	require.Equal(t, []string{"1", "3", "4"}, []string{all[0].URL, all[1].URL, all[2].URL})

	capped := FilterDated(items, 2)
	require.Len(t, capped, 2)
	require.Equal(t, "3", capped[1].URL)
}

func TestParseMetadataMissingTags(t *testing.T) {
	meta, err := ParseMetadata(strings.NewReader(`<html><head>
<meta property="og:image" content="">
<meta property="article:published_time" content="yesterday">
</head></html>`))
	require.NoError(t, err)
	require.Nil(t, meta.Title)
	require.Nil(t, meta.Image)
	require.Nil(t, meta.PublishedAt)
}

func TestParseMetadataReadsOpenGraph(t *testing.T) {
	meta, err := ParseMetadata(strings.NewReader(`<html><head>
<meta property="og:title" content="ETF inflows hit record">
<meta property="og:description" content="Spot funds took in $1B.">
<meta property="og:image" content="https://example.com/cover.png">
<meta property="article:published_time" content="2024-03-01T10:30:00+02:00">
</head></html>`))
	require.NoError(t, err)
	require.Equal(t, "ETF inflows hit record", *meta.Title)
	require.Equal(t, "Spot funds took in $1B.", *meta.Description)
	require.Equal(t, "https://example.com/cover.png", *meta.Image)
	require.NotNil(t, meta.PublishedAt)
	require.True(t, meta.PublishedAt.Equal(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)))
}
