package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetCoinIDs godoc
// @Summary      Resolve a ticker symbol into CoinGecko ids
// @Tags         coins
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., BTC)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/coins/{symbol}/ids [get]
func (h *Handler) GetCoinIDs(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-coin-ids")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	ids, err := h.scoped(zeroTime, zeroTime).GetCoinIDs(ctx, symbol)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "ids": ids})
}

// GetBasicInfo godoc
// @Summary      Coin market, community and developer stats
// @Tags         coins
// @Produce      json
// @Param        symbol  query  string  false  "Ticker symbol"
// @Param        id      query  string  false  "CoinGecko id"
// @Success      200  {object}  domain.BasicInfo
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/coins/info [get]
func (h *Handler) GetBasicInfo(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-basic-info")
	defer span.End()

	info, err := h.scoped(zeroTime, zeroTime).GetBasicInfo(ctx, coinRef(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetHistory godoc
// @Summary      Daily historical prices
// @Description  Returns daily OHLCV rows between start and end from the selected source
// @Tags         coins
// @Produce      json
// @Param        symbol  query  string  false  "Ticker symbol"
// @Param        id      query  string  false  "CoinGecko id"
// @Param        source  query  string  false  "coingecko, cryptocompare or coinmarketcap"
// @Param        start   query  string  false  "YYYY-MM-DD"
// @Param        end     query  string  false  "YYYY-MM-DD"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/coins/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-history")
	defer span.End()

	svc, ok := h.service(c)
	if !ok {
		return
	}
	source := strings.ToLower(strings.TrimSpace(c.Query("source")))
	rows, err := svc.FetchCryptoHistoricalData(ctx, coinRef(c), source)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "history": rows})
}

func (h *Handler) GetExchanges(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-exchanges")
	defer span.End()

	exchanges, err := h.scoped(zeroTime, zeroTime).FetchCryptoExchanges(ctx, coinRef(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": exchanges})
}

func (h *Handler) GetLiveData(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-live-data")
	defer span.End()

	days := queryInt(c, "days", 1, 365)
	candles, err := h.scoped(zeroTime, zeroTime).FetchCryptoLiveData(ctx, coinRef(c), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "ohlc": candles})
}
