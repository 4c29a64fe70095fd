// Package sources defines the news provider interface, its implementations,
// and the canonical article shape every provider is mapped into.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsdesk/pkg/htmltext"
)

// Category is the fixed classification of every ingested article.
const Category = "deepfake-news"

// ErrMissingCredential is returned by a provider whose API key is not configured.
var ErrMissingCredential = errors.New("missing provider credential")

// Article is the canonical article record shared by ingestion, storage and scheduling.
// Empty optional strings are stored as NULL.
type Article struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Source         string     `json:"source"`
	Author         string     `json:"author,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Content        string     `json:"content,omitempty"`
	URLToImage     string     `json:"urlToImage,omitempty"`
	PublishedAt    time.Time  `json:"publishedAt"`
	Tags           []string   `json:"tags"`
	RelevanceScore float64    `json:"relevanceScore"`
	Category       string     `json:"category"`
	IsPublished    bool       `json:"isPublished"`
	PublishDate    *time.Time `json:"publishDate,omitempty"`
}

// Text returns the title, description and content joined by spaces.
func (a Article) Text() string {
	return a.Title + " " + a.Description + " " + a.Content
}

// Source is the interface that all news providers must implement.
type Source interface {
	// Name returns the provider identifier stored in Article.Source.
	Name() string

	// Search queries the provider for recent articles matching any keyword phrase.
	Search(ctx context.Context, keywords []string) ([]Article, error)
}

// Registry holds all registered providers and the keyword phrases they search for.
type Registry struct {
	sources  []Source
	keywords []string
	logger   *slog.Logger
}

// NewRegistry creates a registry searching for the given keyword phrases.
func NewRegistry(keywords []string) *Registry {
	return &Registry{
		keywords: keywords,
		logger:   slog.Default(),
	}
}

// Register adds a source to the registry.
func (r *Registry) Register(s Source) {
	r.sources = append(r.sources, s)
}

// Sources returns the registered providers.
func (r *Registry) Sources() []Source {
	return r.sources
}

// FetchAll searches every registered provider concurrently and concatenates
// the results in registration order. A failing provider is logged and
// contributes nothing.
func (r *Registry) FetchAll(ctx context.Context) []Article {
	type result struct {
		articles []Article
		err      error
	}

	results := make([]chan result, len(r.sources))
	for i, s := range r.sources {
		results[i] = make(chan result, 1)
		go func(src Source, ch chan<- result) {
			start := time.Now()
			articles, err := src.Search(ctx, r.keywords)
			if err == nil {
				r.logger.Debug("source fetched", "source", src.Name(), "count", len(articles), "duration", time.Since(start))
			}
			ch <- result{articles: articles, err: err}
		}(s, results[i])
	}

	var all []Article
	for i, ch := range results {
		res := <-ch
		if res.err != nil {
			r.logger.Warn("source failed", "source", r.sources[i].Name(), "error", res.err)
			continue
		}
		all = append(all, res.articles...)
	}
	return all
}

// orQuery joins keyword phrases into a provider boolean query.
func orQuery(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.Contains(k, " ") {
			k = `"` + k + `"`
		}
		quoted = append(quoted, k)
	}
	return strings.Join(quoted, " OR ")
}

// finalize normalises provider output: HTML is reduced to text, the fixed
// category is set, and records without URL or title are dropped.
func finalize(source string, in []Article) []Article {
	out := make([]Article, 0, len(in))
	for _, a := range in {
		a.URL = strings.TrimSpace(a.URL)
		a.Title = htmltext.Text(a.Title)
		if a.URL == "" || a.Title == "" {
			continue
		}
		a.Source = source
		a.Author = strings.TrimSpace(a.Author)
		a.Description = htmltext.Text(a.Description)
		a.Content = htmltext.Text(a.Content)
		a.URLToImage = strings.TrimSpace(a.URLToImage)
		a.Category = Category
		a.PublishedAt = a.PublishedAt.UTC()
		out = append(out, a)
	}
	return out
}

func requireKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: %w", provider, ErrMissingCredential)
	}
	return nil
}
