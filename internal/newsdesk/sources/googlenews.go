package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
)

// GoogleNewsSource searches the keyless Google News RSS endpoint.
type GoogleNewsSource struct {
	opts   Options
	fetch  *fetcher
	parser *gofeed.Parser
}

// NewGoogleNewsSource creates a Google News RSS client. APIKey is ignored.
func NewGoogleNewsSource(opts Options) *GoogleNewsSource {
	opts = opts.withDefaults("https://news.google.com")
	return &GoogleNewsSource{
		opts:   opts,
		fetch:  newFetcher("googlenews", opts),
		parser: gofeed.NewParser(),
	}
}

func (g *GoogleNewsSource) Name() string { return "googlenews" }

func (g *GoogleNewsSource) Search(ctx context.Context, keywords []string) ([]Article, error) {
	q := url.Values{}
	q.Set("q", orQuery(keywords)+" when:7d")
	q.Set("hl", g.opts.Language)

	body, err := g.fetch.get(ctx, g.opts.BaseURL+"/rss/search?"+q.Encode())
	if err != nil {
		return nil, err
	}

	feed, err := g.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("googlenews: parse feed: %w", err)
	}

	items := feed.Items
	if len(items) > g.opts.PageSize {
		items = items[:g.opts.PageSize]
	}

	articles := make([]Article, 0, len(items))
	for _, item := range items {
		a := Article{
			URL:         item.Link,
			Title:       item.Title,
			Description: item.Description,
			Content:     item.Content,
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.PublishedAt = *item.UpdatedParsed
		} else {
			a.PublishedAt = time.Now()
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			a.Author = item.Authors[0].Name
		}
		if item.Image != nil {
			a.URLToImage = item.Image.URL
		}
		articles = append(articles, a)
	}
	return finalize(g.Name(), articles), nil
}
