package news

import (
	"io"
	"strings"
	"time"

	"karpet/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// Metadata holds the Open Graph fields read from a news page.
type Metadata struct {
	Title       *string
	Description *string
	Image       *string
	PublishedAt *time.Time
}

// ParseMetadata reads og:title, og:description, og:image and
// article:published_time from an HTML document. Missing or malformed
// tags yield nil fields.
func ParseMetadata(r io.Reader) (Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Title:       MetaProperty(doc, "og:title"),
		Description: MetaProperty(doc, "og:description"),
		Image:       MetaProperty(doc, "og:image"),
		PublishedAt: parsePublishedTime(MetaProperty(doc, "article:published_time")),
	}, nil
}

// MetaProperty returns the content of the first <meta property=name> tag.
func MetaProperty(doc *goquery.Document, name string) *string {
	content, ok := doc.Find(`meta[property="` + name + `"]`).First().Attr("content")
	if !ok {
		return nil
	}
	return domain.StringPtr(content)
}

func parsePublishedTime(v *string) *time.Time {
	if v == nil {
		return nil
	}
	raw := strings.TrimSpace(*v)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func (m Metadata) apply(item *domain.NewsItem) {
	if m.Title != nil {
		item.Title = m.Title
	}
	if m.Description != nil {
		item.Description = m.Description
	}
	if m.Image != nil {
		item.Image = m.Image
	}
	if m.PublishedAt != nil {
		item.Date = m.PublishedAt
	}
}
