package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// NewsAPISource searches newsapi.org's /v2/everything endpoint.
type NewsAPISource struct {
	opts  Options
	fetch *fetcher
}

// NewNewsAPISource creates a NewsAPI client.
func NewNewsAPISource(opts Options) *NewsAPISource {
	opts = opts.withDefaults("https://newsapi.org")
	f := newFetcher("newsapi", opts)
	f.header.Set("X-Api-Key", opts.APIKey)
	return &NewsAPISource{opts: opts, fetch: f}
}

func (n *NewsAPISource) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		URLToImage  string    `json:"urlToImage"`
		PublishedAt time.Time `json:"publishedAt"`
		Content     string    `json:"content"`
	} `json:"articles"`
}

func (n *NewsAPISource) Search(ctx context.Context, keywords []string) ([]Article, error) {
	if err := requireKey(n.Name(), n.opts.APIKey); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", orQuery(keywords))
	q.Set("language", n.opts.Language)
	q.Set("pageSize", strconv.Itoa(n.opts.PageSize))
	q.Set("sortBy", "publishedAt")

	var resp newsAPIResponse
	if err := n.fetch.getJSON(ctx, n.opts.BaseURL+"/v2/everything?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %s", resp.Message)
	}

	articles := make([]Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, Article{
			URL:         a.URL,
			Author:      a.Author,
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URLToImage:  a.URLToImage,
			PublishedAt: a.PublishedAt,
		})
	}
	return finalize(n.Name(), articles), nil
}
