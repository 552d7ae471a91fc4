package handler

import (
	"net/http"
	"strings"
	"time"

	"karpet/internal/netguard"
	"karpet/internal/trends"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

var zeroTime time.Time

// GetTrends godoc
// @Summary      Daily Google Trends interest
// @Description  Stitches overlapping windows into one daily series scaled to 100
// @Tags         trends
// @Produce      json
// @Param        keywords  query  string  true   "Comma separated search terms (max 5)"
// @Param        start     query  string  false  "YYYY-MM-DD"
// @Param        end       query  string  false  "YYYY-MM-DD"
// @Param        window    query  int     false  "Days per query (max 270)"
// @Param        overlap   query  int     false  "Days shared by consecutive queries"
// @Param        geo       query  string  false  "Two letter country code"
// @Success      200  {object}  domain.TrendSeries
// @Failure      400  {object}  map[string]string
// @Router       /api/trends [get]
func (h *Handler) GetTrends(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-trends")
	defer span.End()

	keywords := splitList(c.Query("keywords"))
	span.SetAttributes(attribute.StringSlice("keywords", keywords))

	svc, ok := h.service(c)
	if !ok {
		return
	}
	ov := trends.Overrides{
		WindowDays:  queryIntPtr(c, "window"),
		OverlapDays: queryIntPtr(c, "overlap"),
		Category:    queryIntPtr(c, "cat"),
		Geo:         queryStringPtr(c, "geo", strings.ToUpper),
		Property:    queryStringPtr(c, "gprop", nil),
		Language:    queryStringPtr(c, "hl", nil),
	}
	series, err := svc.FetchGoogleTrends(ctx, keywords, ov)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// GetSentiment godoc
// @Summary      Daily crypto Fear & Greed index
// @Tags         trends
// @Produce      json
// @Param        start  query  string  false  "YYYY-MM-DD"
// @Param        end    query  string  false  "YYYY-MM-DD"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/sentiment [get]
func (h *Handler) GetSentiment(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-sentiment")
	defer span.End()

	svc, ok := h.service(c)
	if !ok {
		return
	}
	points, err := svc.FetchFearGreedIndex(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(points), "index": points})
}

func (h *Handler) GetTweets(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-tweets")
	defer span.End()

	svc, ok := h.service(c)
	if !ok {
		return
	}
	lang := strings.TrimSpace(c.DefaultQuery("lang", "en"))
	tweets, err := svc.FetchTweets(ctx, splitList(c.Query("keywords")), lang, queryInt(c, "limit", 100, 1000))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(tweets), "tweets": tweets})
}

// GetNews godoc
// @Summary      News for a coin with Open Graph metadata
// @Tags         news
// @Produce      json
// @Param        symbol  path   string  true   "Ticker symbol"
// @Param        limit   query  int     false  "Max items (default 10)"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/news/{symbol} [get]
func (h *Handler) GetNews(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-news")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	items, err := h.scoped(zeroTime, zeroTime).FetchNews(ctx, symbol, queryInt(c, "limit", 10, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "news": items})
}

func (h *Handler) GetTopNews(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-top-news")
	defer span.End()

	top, err := h.scoped(zeroTime, zeroTime).FetchTopNews(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, top)
}

func (h *Handler) GetFeed(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-feed")
	defer span.End()

	feedURL, err := netguard.ValidateURL(c.Query("url"))
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := h.scoped(zeroTime, zeroTime).FetchFeedNews(ctx, feedURL.String(), queryInt(c, "limit", 20, 200))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": items})
}
