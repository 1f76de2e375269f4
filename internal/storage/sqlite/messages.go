package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sandevgo/threadbot/internal/core"
)

type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

func (r *MessagesRepo) UpsertMessage(ctx context.Context, msg core.DirectMessage) (bool, error) {
	var blob []byte
	var err error
	if len(msg.Embedding) > 0 {
		blob, err = serializeVector(msg.Embedding)
		if err != nil {
			return false, err
		}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender, body, created_utc, embedding)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.Sender, msg.Body, msg.CreatedUTC, blob,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MessagesRepo) HasMessage(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", id, err)
	}
	return true, nil
}

func (r *MessagesRepo) GetUnembedded(ctx context.Context, limit int) ([]core.DirectMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender, body, created_utc FROM messages WHERE embedding IS NULL ORDER BY created_utc ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unembedded messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.DirectMessage
	for rows.Next() {
		var m core.DirectMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.CreatedUTC); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessagesRepo) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	blob, err := serializeVector(vector)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE messages SET embedding = ? WHERE id = ?`, blob, id)
	if err != nil {
		return fmt.Errorf("failed to update message embedding %s: %w", id, err)
	}
	return nil
}
