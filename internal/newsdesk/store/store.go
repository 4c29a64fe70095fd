// Package store provides SQLite-backed persistence for ingested articles.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	"github.com/RobinCoderZhao/newsdesk/pkg/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

var articleColumns = []string{
	"a.id", "a.url", "a.source", "a.author", "a.title", "a.description", "a.content",
	"a.url_to_image", "a.published_at", "a.tags", "a.relevance_score", "a.category",
	"a.is_published", "a.publish_date",
}

// Stats summarises the stored articles.
type Stats struct {
	Total     int `json:"total"`
	Published int `json:"published"`
}

// Store provides article persistence.
type Store struct {
	db     *storage.DB
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Store on db and applies pending schema migrations.
func New(db *storage.DB) (*Store, error) {
	if _, err := db.Migrate(migrations, "migrations"); err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now, logger: slog.Default()}, nil
}

// Open opens the database described by cfg and returns a migrated Store.
func Open(cfg storage.Config) (*Store, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database so other components can share the file.
func (s *Store) DB() *storage.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts a or, when its URL is already stored, refreshes its content
// and derived fields. Publication state is never touched. a.ID is set to the
// persisted identifier; inserted reports whether a new row was created.
func (s *Store) Upsert(ctx context.Context, a *sources.Article) (inserted bool, err error) {
	if a.URL == "" || a.Title == "" {
		return false, errors.New("article url and title are required")
	}
	if a.Category == "" {
		a.Category = sources.Category
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return false, fmt.Errorf("encode tags: %w", err)
	}
	now := s.now().UnixMilli()

	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var id string
		var count int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO articles (
				id, url, source, author, title, description, content, url_to_image,
				published_at, tags, relevance_score, category, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				source = excluded.source,
				author = excluded.author,
				title = excluded.title,
				description = excluded.description,
				content = excluded.content,
				url_to_image = excluded.url_to_image,
				published_at = excluded.published_at,
				tags = excluded.tags,
				relevance_score = excluded.relevance_score,
				category = excluded.category,
				updated_at = excluded.updated_at,
				ingest_count = articles.ingest_count + 1
			RETURNING id, ingest_count
		`, uuid.NewString(), a.URL, a.Source, nullString(a.Author), a.Title,
			nullString(a.Description), nullString(a.Content), nullString(a.URLToImage),
			a.PublishedAt.UnixMilli(), string(tagsJSON), a.RelevanceScore, a.Category, now, now,
		).Scan(&id, &count)
		if err != nil {
			return fmt.Errorf("upsert article: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, id); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		for _, tag := range tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO article_tags (article_id, tag) VALUES (?, ?)`, id, tag); err != nil {
				return fmt.Errorf("insert tag %q: %w", tag, err)
			}
		}

		a.ID = id
		inserted = count == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// FindByID returns the article with id, or nil when none exists.
func (s *Store) FindByID(ctx context.Context, id string) (*sources.Article, error) {
	return s.findOne(ctx, sq.Eq{"a.id": id})
}

// FindByURL returns the article stored under url, or nil when none exists.
func (s *Store) FindByURL(ctx context.Context, url string) (*sources.Article, error) {
	return s.findOne(ctx, sq.Eq{"a.url": url})
}

// Exists reports whether an article with url is stored.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE url = ?`, url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check article: %w", err)
	}
	return n > 0, nil
}

func (s *Store) findOne(ctx context.Context, where sq.Sqlizer) (*sources.Article, error) {
	query, args, err := sq.Select(articleColumns...).From("articles a").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	return a, nil
}

// MarkPublished flips an unpublished article to published at the given time.
// It reports false when the article is missing or was already published.
func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles SET is_published = 1, publish_date = ?, updated_at = ?
		WHERE id = ? AND is_published = 0
	`, at.UnixMilli(), s.now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("mark published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListDistinctTags returns every tag in use, sorted. With publishedOnly only
// tags of published articles are considered.
func (s *Store) ListDistinctTags(ctx context.Context, publishedOnly bool) ([]string, error) {
	b := sq.Select("DISTINCT t.tag").From("article_tags t").OrderBy("t.tag")
	if publishedOnly {
		b = b.Join("articles a ON a.id = t.article_id").Where(sq.Eq{"a.is_published": 1})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Stats returns article counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_published), 0) FROM articles`,
	).Scan(&st.Total, &st.Published)
	if err != nil {
		return Stats{}, fmt.Errorf("article stats: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*sources.Article, error) {
	var a sources.Article
	var author, description, content, image sql.NullString
	var publishedAt int64
	var tagsJSON string
	var isPublished int
	var publishDate sql.NullInt64

	err := row.Scan(&a.ID, &a.URL, &a.Source, &author, &a.Title, &description, &content,
		&image, &publishedAt, &tagsJSON, &a.RelevanceScore, &a.Category, &isPublished, &publishDate)
	if err != nil {
		return nil, err
	}

	a.Author = author.String
	a.Description = description.String
	a.Content = content.String
	a.URLToImage = image.String
	a.PublishedAt = time.UnixMilli(publishedAt).UTC()
	a.IsPublished = isPublished == 1
	if publishDate.Valid {
		t := time.UnixMilli(publishDate.Int64).UTC()
		a.PublishDate = &t
	}
	if err := json.Unmarshal([]byte(tagsJSON), &a.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", a.ID, err)
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
