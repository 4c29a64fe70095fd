package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps the row offset far from integer overflow.
	MaxPage = 1_000_000
)

// Sort fields accepted by Query.
const (
	SortPublishedAt    = "publishedAt"
	SortRelevanceScore = "relevanceScore"
	SortPublishDate    = "publishDate"
	SortTitle          = "title"
)

var (
	// ErrInvalidSort is returned for an unknown sort field or order.
	ErrInvalidSort = errors.New("invalid sort")
	// ErrInvalidPage is returned for a page number beyond MaxPage.
	ErrInvalidPage = errors.New("invalid page")
)

var sortColumns = map[string]string{
	SortPublishedAt:    "a.published_at",
	SortRelevanceScore: "a.relevance_score",
	SortPublishDate:    "a.publish_date",
	SortTitle:          "a.title COLLATE NOCASE",
}

// QueryOptions filters and pages article listings.
type QueryOptions struct {
	Page  int
	Limit int
	// PublishedOnly restricts results to published articles. Public read
	// paths must always set it.
	PublishedOnly bool
	// Tags matches articles carrying at least one of the given tags.
	Tags      []string
	Search    string
	SortField string
	SortOrder string
}

func (o QueryOptions) normalize() (QueryOptions, error) {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Page > MaxPage {
		return o, fmt.Errorf("%w: %d exceeds %d", ErrInvalidPage, o.Page, MaxPage)
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.SortField == "" {
		o.SortField = SortPublishedAt
	}
	if _, ok := sortColumns[o.SortField]; !ok {
		return o, fmt.Errorf("%w: field %q", ErrInvalidSort, o.SortField)
	}
	o.SortOrder = strings.ToLower(o.SortOrder)
	if o.SortOrder == "" {
		o.SortOrder = "desc"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		return o, fmt.Errorf("%w: order %q", ErrInvalidSort, o.SortOrder)
	}
	return o, nil
}

// Page is one page of query results.
type Page struct {
	Items []sources.Article `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// Query returns the articles matching opts together with the total match count.
func (s *Store) Query(ctx context.Context, opts QueryOptions) (Page, error) {
	opts, err := opts.normalize()
	if err != nil {
		return Page{}, err
	}

	base := sq.Select().From("articles a")
	if opts.PublishedOnly {
		base = base.Where(sq.Eq{"a.is_published": 1})
	}
	if tags := cleanTags(opts.Tags); len(tags) > 0 {
		sub, args, err := sq.Select("1").From("article_tags t").
			Where("t.article_id = a.id").
			Where(sq.Eq{"t.tag": tags}).
			ToSql()
		if err != nil {
			return Page{}, err
		}
		base = base.Where(sq.Expr("EXISTS ("+sub+")", args...))
	}
	if match := ftsQuery(opts.Search); match != "" {
		base = base.Where("a.seq IN (SELECT rowid FROM articles_fts WHERE articles_fts MATCH ?)", match)
	}

	countSQL, countArgs, err := base.Column("COUNT(*)").ToSql()
	if err != nil {
		return Page{}, err
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count articles: %w", err)
	}

	order := strings.ToUpper(opts.SortOrder)
	listSQL, listArgs, err := base.Columns(articleColumns...).
		OrderBy(sortColumns[opts.SortField]+" "+order, "a.seq "+order).
		Limit(uint64(opts.Limit)).
		Offset(uint64((opts.Page - 1) * opts.Limit)).
		ToSql()
	if err != nil {
		return Page{}, err
	}

	rows, err := s.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return Page{}, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	items := []sources.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	return Page{Items: items, Total: total, Page: opts.Page, Limit: opts.Limit}, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ftsQuery turns free text into an FTS5 query where every word must match.
// Words are quoted so user input cannot inject FTS5 operators.
func ftsQuery(text string) string {
	words := strings.Fields(text)
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
