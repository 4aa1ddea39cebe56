package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantonganh/postbox"
)

const sampleFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:og="http://ogp.me/ns#">
  <channel>
    <title>title</title>
    <link>https://link.org/</link>
    <description>description</description>
    <lastBuildDate>Thu, 03 Oct 2019 20:11:47 GMT</lastBuildDate>
    <atom:link href="https://link.org/index.xml" rel="self" type="application/rss+xml" />
    <item>
      <title>Item title</title>
      <link>https://link.org/post/</link>
      <pubDate>Thu, 03 Oct 2019 20:11:47 GMT</pubDate>
      <guid>https://link.org/post/</guid>
      <description>&lt;p&gt;A &lt;b&gt;short&lt;/b&gt; description&lt;/p&gt;</description>
      <og:image>image</og:image>
    </item>
    <item>
      <title>Offset</title>
      <link>https://link.org/offset/</link>
      <pubDate>Thu, 03 Oct 2019 20:11:47 +0200</pubDate>
      <enclosure url="https://link.org/cover.jpg" type="image/jpeg" length="100" />
    </item>
    <item>
      <title>No date</title>
      <link>https://link.org/no-date/</link>
    </item>
    <item>
      <title>No link</title>
      <pubDate>Thu, 03 Oct 2019 20:11:47 GMT</pubDate>
    </item>
    <item>
      <title>Bad date</title>
      <link>https://link.org/bad-date/</link>
      <pubDate>2019-10-03</pubDate>
    </item>
  </channel>
</rss>`

func TestParse(t *testing.T) {
	items, skipped, err := Parse(strings.NewReader(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, items, 2)

	assert.Equal(t, postbox.FeedItem{
		Title:       "Item title",
		Link:        "https://link.org/post/",
		PubDate:     time.Date(2019, 10, 3, 20, 11, 47, 0, time.UTC),
		Description: "A short description",
		Image:       "image",
	}, items[0])

	assert.Equal(t, "Offset", items[1].Title)
	assert.True(t, items[1].PubDate.Equal(time.Date(2019, 10, 3, 18, 11, 47, 0, time.UTC)))
	assert.Equal(t, "https://link.org/cover.jpg", items[1].Image)
	assert.Empty(t, items[1].Description)
}

func TestParseWithoutChannel(t *testing.T) {
	items, skipped, err := Parse(strings.NewReader(`<rss version="2.0"></rss>`))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, items)
}

func TestParseDecodesCharset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<rss><channel><item><title>Caf\xe9</title><link>https://link.org/cafe/</link>" +
		"<pubDate>Thu, 03 Oct 2019 20:11:47 GMT</pubDate></item></channel></rss>"

	items, _, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Café", items[0].Title)
}

func TestParseInvalidXML(t *testing.T) {
	_, _, err := Parse(strings.NewReader("<rss><channel>"))
	assert.Error(t, err)
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c := NewClient(time.Second)

	items, err := c.Fetch(context.Background(), srv.URL+"/index.xml")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = c.Fetch(context.Background(), srv.URL+"/missing.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
