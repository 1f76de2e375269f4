package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/threadbot/internal/core"
)

type CommentsRepo struct {
	db *sql.DB
}

func NewCommentsRepo(db *sql.DB) *CommentsRepo {
	return &CommentsRepo{db: db}
}

func (r *CommentsRepo) UpsertComment(ctx context.Context, comment core.Comment) (bool, error) {
	var blob []byte
	var err error
	if len(comment.Embedding) > 0 {
		blob, err = serializeVector(comment.Embedding)
		if err != nil {
			return false, err
		}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, parent_id, author, body, created_utc, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		comment.ID, comment.PostID, nullable(comment.ParentID), comment.Author, comment.Body, comment.CreatedUTC, blob,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert comment %s: %w", comment.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CommentsRepo) GetComment(ctx context.Context, id string) (*core.Comment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, parent_id, author, body, created_utc FROM comments WHERE id = ?`, id)
	c, err := scanComment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comment %s: %w", id, err)
	}
	return c, nil
}

func (r *CommentsRepo) GetChildren(ctx context.Context, parentID string) ([]core.Comment, error) {
	return r.queryComments(ctx,
		`SELECT id, post_id, parent_id, author, body, created_utc FROM comments WHERE parent_id = ? ORDER BY created_utc ASC`,
		parentID)
}

func (r *CommentsRepo) GetPostComments(ctx context.Context, postID string, exclude []string) ([]core.Comment, error) {
	query := `SELECT id, post_id, parent_id, author, body, created_utc FROM comments WHERE post_id = ?`
	args := []interface{}{postID}
	if len(exclude) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(",?", len(exclude)-1) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_utc ASC`
	return r.queryComments(ctx, query, args...)
}

func (r *CommentsRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM comments`)
	if err != nil {
		return nil, fmt.Errorf("failed to list comment ids: %w", err)
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

func (r *CommentsRepo) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]core.ScoredRow, error) {
	return r.searchSimilar(ctx, vector, limit, -1)
}

func (r *CommentsRepo) SearchSimilarAbove(ctx context.Context, vector []float32, threshold float32, limit int) ([]core.ScoredRow, error) {
	return r.searchSimilar(ctx, vector, limit, threshold)
}

func (r *CommentsRepo) searchSimilar(ctx context.Context, vector []float32, limit int, threshold float32) ([]core.ScoredRow, error) {
	candidates, err := topKSimilar(ctx, r.db,
		`SELECT id, embedding FROM comments WHERE embedding IS NOT NULL`,
		vector, limit, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("comment similarity search failed: %w", err)
	}
	return r.hydrate(ctx, candidates)
}

func (r *CommentsRepo) SearchKeyword(ctx context.Context, query string, limit int) ([]core.ScoredRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.body, c.author
		 FROM comments_fts f
		 JOIN comments c ON c.rowid = f.rowid
		 WHERE comments_fts MATCH ?
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("comment keyword search failed: %w", err)
	}
	defer rows.Close()

	var results []core.ScoredRow
	for rows.Next() {
		var row core.ScoredRow
		if err := rows.Scan(&row.ID, &row.PostID, &row.Body, &row.Author); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (r *CommentsRepo) GetUnembedded(ctx context.Context, limit int) ([]core.Comment, error) {
	return r.queryComments(ctx,
		`SELECT id, post_id, parent_id, author, body, created_utc FROM comments WHERE embedding IS NULL ORDER BY created_utc ASC LIMIT ?`,
		limit)
}

func (r *CommentsRepo) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	blob, err := serializeVector(vector)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE comments SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return fmt.Errorf("failed to update comment embedding %s: %w", id, err)
	}
	return nil
}

func (r *CommentsRepo) hydrate(ctx context.Context, candidates []idScore) ([]core.ScoredRow, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(candidates))
	scores := make(map[string]float32, len(candidates))
	for i, c := range candidates {
		args[i] = c.ID
		scores[c.ID] = c.Score
	}

	query := `SELECT id, post_id, body, author FROM comments WHERE id IN (?` +
		strings.Repeat(",?", len(candidates)-1) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]core.ScoredRow, len(candidates))
	for rows.Next() {
		var row core.ScoredRow
		if err := rows.Scan(&row.ID, &row.PostID, &row.Body, &row.Author); err != nil {
			return nil, err
		}
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

func (r *CommentsRepo) queryComments(ctx context.Context, query string, args ...interface{}) ([]core.Comment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []core.Comment
	for rows.Next() {
		c, err := scanComment(rows.Scan)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func scanComment(scan func(...interface{}) error) (*core.Comment, error) {
	var c core.Comment
	var parentID sql.NullString
	if err := scan(&c.ID, &c.PostID, &parentID, &c.Author, &c.Body, &c.CreatedUTC); err != nil {
		return nil, err
	}
	c.ParentID = parentID.String
	return &c, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
