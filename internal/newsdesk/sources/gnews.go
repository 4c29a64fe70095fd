package sources

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// GNewsSource searches gnews.io.
type GNewsSource struct {
	opts  Options
	fetch *fetcher
}

// NewGNewsSource creates a GNews client.
func NewGNewsSource(opts Options) *GNewsSource {
	opts = opts.withDefaults("https://gnews.io")
	return &GNewsSource{opts: opts, fetch: newFetcher("gnews", opts)}
}

func (g *GNewsSource) Name() string { return "gnews" }

type gnewsResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Content     string    `json:"content"`
		URL         string    `json:"url"`
		Image       string    `json:"image"`
		PublishedAt time.Time `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"source"`
	} `json:"articles"`
}

func (g *GNewsSource) Search(ctx context.Context, keywords []string) ([]Article, error) {
	if err := requireKey(g.Name(), g.opts.APIKey); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", orQuery(keywords))
	q.Set("lang", g.opts.Language)
	q.Set("max", strconv.Itoa(g.opts.PageSize))
	q.Set("sortby", "publishedAt")
	q.Set("apikey", g.opts.APIKey)

	var resp gnewsResponse
	if err := g.fetch.getJSON(ctx, g.opts.BaseURL+"/api/v4/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, Article{
			URL:         a.URL,
			Author:      a.Source.Name,
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URLToImage:  a.Image,
			PublishedAt: a.PublishedAt,
		})
	}
	return finalize(g.Name(), articles), nil
}
