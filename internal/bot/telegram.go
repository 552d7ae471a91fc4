package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"karpet/internal/domain"
	"karpet/internal/service"
	"karpet/internal/trends"

	tele "gopkg.in/telebot.v3"
)

const commandTimeout = 60 * time.Second

// Karpet is the part of service.Karpet the bot commands need.
type Karpet interface {
	GetBasicInfo(ctx context.Context, ref service.CoinRef) (*domain.BasicInfo, error)
	FetchNews(ctx context.Context, symbol string, limit int) ([]*domain.NewsItem, error)
	FetchGoogleTrends(ctx context.Context, keywords []string, ov trends.Overrides) (domain.TrendSeries, error)
}

func StartTelegramBot(token string, karpet Karpet) {
	token = strings.TrimSpace(token)
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Printf("failed to create Telegram bot: %v", err)
		return
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/info", func(c tele.Context) error {
		return c.Send(infoReply(karpet, c.Args()))
	})
	b.Handle("/news", func(c tele.Context) error {
		return c.Send(newsReply(karpet, c.Args()), tele.NoPreview)
	})
	b.Handle("/trends", func(c tele.Context) error {
		return c.Send(trendsReply(karpet, c.Args()))
	})

	log.Println("Telegram bot started")
	go b.Start()
}

func infoReply(karpet Karpet, args []string) string {
	if len(args) == 0 {
		return "Usage: /info BTC"
	}
	symbol := strings.ToUpper(args[0])

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	info, err := karpet.GetBasicInfo(ctx, service.CoinRef{Symbol: symbol})
	if err != nil {
		return fmt.Sprintf("Error fetching info for %s: %v", symbol, err)
	}
	return fmt.Sprintf(
		"%s (%s) #%d\nPrice: $%.2f\nMarket cap: $%d\n52w range: $%.2f - $%.2f\nYoY: %.2f%%",
		info.Name, strings.ToUpper(info.Symbol), info.Rank, info.CurrentPrice,
		info.MarketCap, info.YearLow, info.YearHigh, info.YoYChange,
	)
}

func newsReply(karpet Karpet, args []string) string {
	if len(args) == 0 {
		return "Usage: /news ETH"
	}
	symbol := strings.ToUpper(args[0])

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	items, err := karpet.FetchNews(ctx, symbol, 5)
	if err != nil {
		return fmt.Sprintf("Error fetching news for %s: %v", symbol, err)
	}
	if len(items) == 0 {
		return fmt.Sprintf("No news for %s", symbol)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s news\n", symbol)
	for _, item := range items {
		title := item.URL
		if item.Title != nil && *item.Title != "" {
			title = *item.Title
		}
		date := ""
		if item.Date != nil {
			date = item.Date.Format("2006-01-02") + " "
		}
		fmt.Fprintf(&sb, "\n%s%s\n%s\n", date, title, item.URL)
	}
	return sb.String()
}

func trendsReply(karpet Karpet, args []string) string {
	keyword := strings.TrimSpace(strings.Join(args, " "))
	if keyword == "" {
		return "Usage: /trends bitcoin"
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	series, err := karpet.FetchGoogleTrends(ctx, []string{keyword}, trends.Overrides{})
	if err != nil {
		return fmt.Sprintf("Error fetching trends for %q: %v", keyword, err)
	}
	if len(series.Points) == 0 {
		return fmt.Sprintf("No trend data for %q", keyword)
	}

	var peak domain.TrendPoint
	for _, p := range series.Points {
		if peak.Values == nil || p.Values[keyword] > peak.Values[keyword] {
			peak = p
		}
	}
	last := series.Points[len(series.Points)-1]
	return fmt.Sprintf(
		"%q interest (0-100)\nLatest %s: %.1f\nPeak %s: %.1f",
		keyword, last.Date.Format("2006-01-02"), last.Values[keyword],
		peak.Date.Format("2006-01-02"), peak.Values[keyword],
	)
}
