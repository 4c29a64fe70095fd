package queue

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/RobinCoderZhao/newsdesk/pkg/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrationsTable keeps the schedule schema version apart from the article
// store's, which shares the database file.
const migrationsTable = "schedule_migrations"

// SQLiteQueue stores the schedule sets in two tables keyed by article ID and
// indexed on time. Every mutation runs in one write transaction.
type SQLiteQueue struct {
	db *storage.DB
}

// NewSQLiteQueue creates a queue on db and applies its schema migrations.
func NewSQLiteQueue(db *storage.DB) (*SQLiteQueue, error) {
	if _, err := db.MigrateTable(migrations, "migrations", migrationsTable); err != nil {
		return nil, err
	}
	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) Add(ctx context.Context, articleID string, dueAt time.Time) error {
	return q.db.Transaction(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schedule_history WHERE article_id = ?`, articleID).Scan(&n); err != nil {
			return fmt.Errorf("schedule %s: %w", articleID, err)
		}
		if n > 0 {
			return ErrAlreadyPublished
		}
		return upsertPending(ctx, tx, articleID, dueAt)
	})
}

func (q *SQLiteQueue) Due(ctx context.Context, now time.Time) ([]Entry, error) {
	entries, err := q.selectEntries(ctx, sq.Select("article_id", "due_at").From("schedule_pending").
		Where(sq.LtOrEq{"due_at": now.UnixMilli()}).
		OrderBy("due_at", "article_id"))
	if err != nil {
		return nil, fmt.Errorf("read due entries: %w", err)
	}
	return entries, nil
}

// Claim deletes the pending row and records the history row in the same
// transaction. A missing pending row means another run claimed it.
func (q *SQLiteQueue) Claim(ctx context.Context, articleID string, publishedAt time.Time) (bool, error) {
	var claimed bool
	err := q.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM schedule_pending WHERE article_id = ?`, articleID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_history (article_id, published_at) VALUES (?, ?)
			ON CONFLICT(article_id) DO UPDATE SET published_at = excluded.published_at
		`, articleID, publishedAt.UnixMilli()); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", articleID, err)
	}
	return claimed, nil
}

func (q *SQLiteQueue) Restore(ctx context.Context, e Entry) error {
	err := q.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_history WHERE article_id = ?`, e.ArticleID); err != nil {
			return err
		}
		return upsertPending(ctx, tx, e.ArticleID, e.At)
	})
	if err != nil {
		return fmt.Errorf("restore %s: %w", e.ArticleID, err)
	}
	return nil
}

func (q *SQLiteQueue) Pending(ctx context.Context) ([]Entry, error) {
	entries, err := q.selectEntries(ctx, sq.Select("article_id", "due_at").From("schedule_pending").
		OrderBy("due_at", "article_id"))
	if err != nil {
		return nil, fmt.Errorf("read pending entries: %w", err)
	}
	return entries, nil
}

func (q *SQLiteQueue) History(ctx context.Context, limit int) ([]Entry, error) {
	b := sq.Select("article_id", "published_at").From("schedule_history").
		OrderBy("published_at DESC", "article_id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	entries, err := q.selectEntries(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("read history entries: %w", err)
	}
	return entries, nil
}

func (q *SQLiteQueue) selectEntries(ctx context.Context, b sq.SelectBuilder) ([]Entry, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var id string
		var ms int64
		if err := rows.Scan(&id, &ms); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ArticleID: id, At: time.UnixMilli(ms).UTC()})
	}
	return entries, rows.Err()
}

func upsertPending(ctx context.Context, tx *sql.Tx, articleID string, dueAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_pending (article_id, due_at) VALUES (?, ?)
		ON CONFLICT(article_id) DO UPDATE SET due_at = excluded.due_at
	`, articleID, dueAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert pending %s: %w", articleID, err)
	}
	return nil
}
