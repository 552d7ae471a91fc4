package domain

import "time"

// HistoricalPrice is one daily row of a coin's price history.
type HistoricalPrice struct {
	Coin      string    `json:"coin"`
	Date      time.Time `json:"date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	MarketCap float64   `json:"market_cap"`
}

// OHLC is a single candle returned by the live data endpoint.
type OHLC struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// CoinListing is one entry of an upstream coin directory.
type CoinListing struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Rank   int    `json:"rank,omitempty"`
}

// BasicInfo aggregates market, community and developer statistics for a coin.
type BasicInfo struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Symbol                   string  `json:"symbol"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                int64   `json:"market_cap"`
	Rank                     int     `json:"rank"`
	RedditAveragePosts48h    float64 `json:"reddit_average_posts_48h"`
	RedditAverageComments48h float64 `json:"reddit_average_comments_48h"`
	RedditSubscribers        int     `json:"reddit_subscribers"`
	RedditAccountsActive48h  float64 `json:"reddit_accounts_active_48h"`
	Forks                    int     `json:"forks"`
	Stars                    int     `json:"stars"`
	TotalIssues              int     `json:"total_issues"`
	ClosedIssues             int     `json:"closed_issues"`
	OpenIssues               int     `json:"open_issues"`
	PullRequestContributors  int     `json:"pull_request_contributors"`
	CommitCount4Weeks        int     `json:"commit_count_4_weeks"`
	YearLow                  float64 `json:"year_low"`
	YearHigh                 float64 `json:"year_high"`
	YoYChange                float64 `json:"yoy_change"`
}

// History sources accepted by the historical data fetch.
const (
	SourceCoinGecko     = "coingecko"
	SourceCryptoCompare = "cryptocompare"
	SourceCoinMarketCap = "coinmarketcap"
)

// SentimentPoint is one daily reading of the crypto Fear & Greed index.
type SentimentPoint struct {
	Date           time.Time `json:"date"`
	Value          int       `json:"value"`
	Classification string    `json:"classification"`
}
