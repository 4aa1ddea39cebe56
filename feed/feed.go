// Package feed fetches and parses the RSS feed of the blog.
package feed

import (
	"context"
	"encoding/xml"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/quantonganh/postbox"
)

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        *string `xml:"link"`
	PubDate     *string `xml:"pubDate"`
	Description string  `xml:"description"`
	Image       string  `xml:"http://ogp.me/ns# image"`
	Enclosure   struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
}

var dateLayouts = []string{time.RFC1123Z, time.RFC1123}

var stripPolicy = bluemonday.StrictPolicy()

// Client downloads a feed over HTTP
type Client struct {
	httpClient *http.Client

	Logger zerolog.Logger
}

// NewClient returns new feed client
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		Logger:     zerolog.Nop(),
	}
}

// Fetch downloads and parses the feed at url
func (c *Client) Fetch(ctx context.Context, url string) ([]postbox.FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status code fetching %s: %d", url, resp.StatusCode)
	}

	items, skipped, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.Logger.Warn().Str("url", url).Int("skipped", skipped).Msg("Skipped feed items without link or pubDate")
	}

	return items, nil
}

// Parse reads an RSS document. Items missing a link or a valid pubDate are
// skipped and counted.
func Parse(r io.Reader) ([]postbox.FeedItem, int, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	var doc rss
	if err := d.Decode(&doc); err != nil {
		return nil, 0, errors.Wrap(err, "decode feed")
	}

	var (
		items   []postbox.FeedItem
		skipped int
	)
	for _, it := range doc.Channel.Items {
		if it.Link == nil || it.PubDate == nil {
			skipped++
			continue
		}

		pubDate, err := parseDate(*it.PubDate)
		if err != nil {
			skipped++
			continue
		}

		items = append(items, postbox.FeedItem{
			Title:       strings.TrimSpace(it.Title),
			Link:        strings.TrimSpace(*it.Link),
			PubDate:     pubDate,
			Description: sanitize(it.Description),
			Image:       it.image(),
		})
	}

	return items, skipped, nil
}

func (it rssItem) image() string {
	if it.Image != "" {
		return strings.TrimSpace(it.Image)
	}
	if strings.HasPrefix(it.Enclosure.Type, "image/") {
		return it.Enclosure.URL
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid pubDate %q", s)
}

// sanitize removes all HTML tags from a description. Entities are decoded
// since the mail templates escape the text again.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}
