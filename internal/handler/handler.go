package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"karpet/internal/domain"
	"karpet/internal/service"
	"karpet/internal/trends"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

const dateLayout = "2006-01-02"

// DataService is the subset of service.Karpet the routes use, bounded to
// one request's date range.
type DataService interface {
	FetchCryptoHistoricalData(ctx context.Context, ref service.CoinRef, source string) ([]domain.HistoricalPrice, error)
	FetchCryptoExchanges(ctx context.Context, ref service.CoinRef) ([]string, error)
	FetchGoogleTrends(ctx context.Context, keywords []string, ov trends.Overrides) (domain.TrendSeries, error)
	FetchTweets(ctx context.Context, keywords []string, lang string, limit int) ([]domain.Tweet, error)
	FetchNews(ctx context.Context, symbol string, limit int) ([]*domain.NewsItem, error)
	FetchTopNews(ctx context.Context) (*service.TopNews, error)
	FetchFeedNews(ctx context.Context, feedURL string, limit int) ([]*domain.NewsItem, error)
	GetBasicInfo(ctx context.Context, ref service.CoinRef) (*domain.BasicInfo, error)
	GetCoinIDs(ctx context.Context, symbol string) ([]string, error)
	FetchCryptoLiveData(ctx context.Context, ref service.CoinRef, days int) ([]domain.OHLC, error)
	FetchFearGreedIndex(ctx context.Context) ([]domain.SentimentPoint, error)
}

type Handler struct {
	tracer trace.Tracer
	scoped func(start, end time.Time) DataService
}

func New(tracer trace.Tracer, karpet *service.Karpet) *Handler {
	return &Handler{
		tracer: tracer,
		scoped: func(start, end time.Time) DataService { return karpet.Between(start, end) },
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.GET("/coins/:symbol/ids", h.GetCoinIDs)
	api.GET("/coins/info", h.GetBasicInfo)
	api.GET("/coins/history", h.GetHistory)
	api.GET("/coins/exchanges", h.GetExchanges)
	api.GET("/coins/live", h.GetLiveData)
	api.GET("/trends", h.GetTrends)
	api.GET("/sentiment", h.GetSentiment)
	api.GET("/tweets", h.GetTweets)
	api.GET("/news/:symbol", h.GetNews)
	api.GET("/top-news", h.GetTopNews)
	api.GET("/feed", h.GetFeed)
}

// service returns the data service bounded by the start and end query
// parameters. Missing bounds keep the service defaults.
func (h *Handler) service(c *gin.Context) (DataService, bool) {
	start, err := parseDate(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date, expected YYYY-MM-DD"})
		return nil, false
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date, expected YYYY-MM-DD"})
		return nil, false
	}
	return h.scoped(start, end), true
}

func coinRef(c *gin.Context) service.CoinRef {
	return service.CoinRef{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		ID:     strings.TrimSpace(c.Query("id")),
	}
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, v)
}

func queryInt(c *gin.Context, key string, def, max int) int {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && (max <= 0 || n <= max) {
			return n
		}
	}
	return def
}

// queryIntPtr is nil unless key holds a non-negative integer.
func queryIntPtr(c *gin.Context, key string) *int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func queryStringPtr(c *gin.Context, key string, normalize func(string) string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	if normalize != nil {
		v = normalize(v)
	}
	return &v
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrParse):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
