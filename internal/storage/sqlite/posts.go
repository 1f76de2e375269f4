package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/threadbot/internal/core"
)

type PostsRepo struct {
	db *sql.DB
}

func NewPostsRepo(db *sql.DB) *PostsRepo {
	return &PostsRepo{db: db}
}

func (r *PostsRepo) UpsertPost(ctx context.Context, post core.Post) (bool, error) {
	var blob []byte
	var err error
	if len(post.Embedding) > 0 {
		blob, err = serializeVector(post.Embedding)
		if err != nil {
			return false, err
		}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, selftext, author, created_utc, url, post_hint, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		post.ID, post.Title, post.Body, post.Author, post.CreatedUTC, post.URL, post.PostHint, blob,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert post %s: %w", post.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostsRepo) GetPost(ctx context.Context, id string) (*core.Post, error) {
	var p core.Post
	var body, url, hint sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, selftext, author, created_utc, url, post_hint FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &body, &p.Author, &p.CreatedUTC, &url, &hint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post %s: %w", id, err)
	}
	p.Body = body.String
	p.URL = url.String
	p.PostHint = hint.String
	return &p, nil
}

func (r *PostsRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list post ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostsRepo) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]core.ScoredRow, error) {
	candidates, err := topKSimilar(ctx, r.db,
		`SELECT id, embedding FROM posts WHERE embedding IS NOT NULL`,
		vector, limit, -1,
	)
	if err != nil {
		return nil, fmt.Errorf("post similarity search failed: %w", err)
	}
	return r.hydrate(ctx, candidates)
}

func (r *PostsRepo) SearchKeyword(ctx context.Context, query string, limit int) ([]core.ScoredRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.title, p.selftext, p.author
		 FROM posts_fts f
		 JOIN posts p ON p.rowid = f.rowid
		 WHERE posts_fts MATCH ?
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("post keyword search failed: %w", err)
	}
	defer rows.Close()

	var results []core.ScoredRow
	for rows.Next() {
		var row core.ScoredRow
		var body sql.NullString
		if err := rows.Scan(&row.ID, &row.Title, &body, &row.Author); err != nil {
			return nil, err
		}
		row.Body = body.String
		results = append(results, row)
	}
	return results, rows.Err()
}

func (r *PostsRepo) GetUnembedded(ctx context.Context, limit int) ([]core.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, selftext, author, created_utc FROM posts WHERE embedding IS NULL ORDER BY created_utc ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unembedded posts: %w", err)
	}
	defer rows.Close()

	var posts []core.Post
	for rows.Next() {
		var p core.Post
		var body sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &body, &p.Author, &p.CreatedUTC); err != nil {
			return nil, err
		}
		p.Body = body.String
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostsRepo) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	blob, err := serializeVector(vector)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE posts SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return fmt.Errorf("failed to update post embedding %s: %w", id, err)
	}
	return nil
}

// hydrate fetches full rows for the scan winners, preserving rank order
// and attaching scores.
func (r *PostsRepo) hydrate(ctx context.Context, candidates []idScore) ([]core.ScoredRow, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(candidates))
	scores := make(map[string]float32, len(candidates))
	for i, c := range candidates {
		args[i] = c.ID
		scores[c.ID] = c.Score
	}

	query := `SELECT id, title, selftext, author FROM posts WHERE id IN (?` +
		strings.Repeat(",?", len(candidates)-1) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]core.ScoredRow, len(candidates))
	for rows.Next() {
		var row core.ScoredRow
		var body sql.NullString
		if err := rows.Scan(&row.ID, &row.Title, &body, &row.Author); err != nil {
			return nil, err
		}
		row.Body = body.String
		row.Score = scores[row.ID]
		byID[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]core.ScoredRow, 0, len(candidates))
	for _, c := range candidates {
		if row, ok := byID[c.ID]; ok {
			results = append(results, row)
		}
	}
	return results, nil
}
