package domain

import (
	"strings"
	"time"
)

// NewsItem starts with only URL populated and is enriched in place.
// Nil pointer fields mean the value could not be resolved.
type NewsItem struct {
	URL         string     `json:"url"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	Image       *string    `json:"image"`
	Content     *string    `json:"content,omitempty"`
}

// Tweet is a normalized search result from Twitter.
type Tweet struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullname"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Date      time.Time `json:"date"`
	URL       string    `json:"url"`
	Likes     int       `json:"likes"`
	Replies   int       `json:"replies"`
	Retweets  int       `json:"retweets"`
	HasLink   bool      `json:"has_link"`
}

// ContainsLink reports whether a tweet text carries an http(s) link.
func ContainsLink(text string) bool {
	return strings.Contains(text, "http://") || strings.Contains(text, "https://")
}

// StringPtr returns a pointer to a trimmed copy of s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
