package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"karpet/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	twitterBaseURL     = "https://api.twitter.com"
	twitterPageSize    = 100
	twitterMinPageSize = 10
	twitterMaxPages    = 50

	// recent search only serves the last seven days
	twitterSearchWindow = 7 * 24 * time.Hour
)

// TwitterProvider searches recent tweets with the v2 API.
type TwitterProvider struct {
	client      *http.Client
	baseURL     string
	bearerToken string
	tracer      trace.Tracer
	limiter     *RateLimiter
	now         func() time.Time
}

func NewTwitterProvider(tracer trace.Tracer, bearerToken string) *TwitterProvider {
	return &TwitterProvider{
		client:      &http.Client{Timeout: 20 * time.Second},
		baseURL:     twitterBaseURL,
		bearerToken: strings.TrimSpace(bearerToken),
		tracer:      tracer,
		limiter:     NewRateLimiter(1, 2*time.Second),
		now:         time.Now,
	}
}

// BuildTweetQuery joins keywords with OR and restricts the language.
func BuildTweetQuery(keywords []string, lang string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			kw = strconv.Quote(kw)
		}
		terms = append(terms, kw)
	}
	q := strings.Join(terms, " OR ")
	if len(terms) > 1 {
		q = "(" + q + ")"
	}
	if lang = strings.TrimSpace(lang); lang != "" {
		q = strings.TrimSpace(q + " lang:" + lang)
	}
	return q
}

type twitterSearchResponse struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		AuthorID      string    `json:"author_id"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			Likes    int `json:"like_count"`
			Replies  int `json:"reply_count"`
			Retweets int `json:"retweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// FetchTweets returns tweets matching any of keywords posted since the
// given time. A limit of zero fetches every available page.
func (p *TwitterProvider) FetchTweets(ctx context.Context, keywords []string, lang string, since time.Time, limit int) ([]domain.Tweet, error) {
	ctx, span := p.tracer.Start(ctx, "twitter.search-recent")
	defer span.End()

	if p.bearerToken == "" {
		return nil, fmt.Errorf("%w: twitter bearer token is not configured", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(strings.Join(keywords, "")) == "" {
		return nil, fmt.Errorf("%w: at least one keyword is required", domain.ErrInvalidArgument)
	}
	query := BuildTweetQuery(keywords, lang)

	floor := p.now().Add(-twitterSearchWindow).Add(time.Minute)
	if since.Before(floor) {
		since = floor
	}

	headers := map[string]string{
		"Authorization": "Bearer " + p.bearerToken,
		"Accept":        "application/json",
	}

	var (
		tweets    []domain.Tweet
		nextToken string
	)
	for page := 0; page < twitterMaxPages; page++ {
		size := twitterPageSize
		if limit > 0 {
			size = min(max(limit-len(tweets), twitterMinPageSize), twitterPageSize)
		}

		params := url.Values{}
		params.Set("query", query)
		params.Set("max_results", strconv.Itoa(size))
		params.Set("start_time", since.UTC().Format(time.RFC3339))
		params.Set("tweet.fields", "created_at,public_metrics,author_id")
		params.Set("expansions", "author_id")
		params.Set("user.fields", "name,username")
		if nextToken != "" {
			params.Set("next_token", nextToken)
		}

		body, err := getBody(ctx, p.client, p.limiter, p.baseURL+"/2/tweets/search/recent?"+params.Encode(), headers)
		if err != nil {
			return nil, fmt.Errorf("search tweets: %w", err)
		}

		var resp twitterSearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, parseErr("tweet search", err)
		}

		users := make(map[string][2]string, len(resp.Includes.Users))
		for _, u := range resp.Includes.Users {
			users[u.ID] = [2]string{u.Name, u.Username}
		}

		for _, t := range resp.Data {
			user := users[t.AuthorID]
			ts := t.CreatedAt.UTC()
			tweets = append(tweets, domain.Tweet{
				ID:        t.ID,
				FullName:  user[0],
				User:      user[1],
				Text:      t.Text,
				Timestamp: ts,
				Date:      time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
				URL:       tweetURL(user[1], t.ID),
				Likes:     t.PublicMetrics.Likes,
				Replies:   t.PublicMetrics.Replies,
				Retweets:  t.PublicMetrics.Retweets,
				HasLink:   domain.ContainsLink(t.Text),
			})
			if limit > 0 && len(tweets) >= limit {
				return tweets, nil
			}
		}

		nextToken = resp.Meta.NextToken
		if nextToken == "" {
			break
		}
	}
	return tweets, nil
}

func tweetURL(username, id string) string {
	if username == "" {
		return "https://twitter.com/i/web/status/" + id
	}
	return "https://twitter.com/" + username + "/status/" + id
}
