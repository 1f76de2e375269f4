package ingest

import (
	"context"
	"time"

	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/pkg/log"
)

const (
	backfillInterval = 30 * time.Second
	backfillBatch    = 32
)

// Backfill is the background worker that gives stored rows their
// vectors. It drains posts, comments and messages in small batches so
// a cold start with a large archive catches up without hammering the
// embedding endpoint.
type Backfill struct {
	posts    core.PostsRepository
	comments core.CommentsRepository
	messages core.MessagesRepository
	enc      core.DualEncoder

	interval time.Duration
	batch    int
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewBackfill(posts core.PostsRepository, comments core.CommentsRepository, messages core.MessagesRepository, enc core.DualEncoder) *Backfill {
	return &Backfill{
		posts:    posts,
		comments: comments,
		messages: messages,
		enc:      enc,
		interval: backfillInterval,
		batch:    backfillBatch,
		done:     make(chan struct{}),
	}
}

func (w *Backfill) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
	return nil
}

func (w *Backfill) Shutdown(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

func (w *Backfill) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First sweep right away so a restart doesn't sit idle for a tick.
	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep embeds one batch per table. Failures are logged and retried on
// the next tick; rows keep their NULL embedding until a sweep succeeds.
func (w *Backfill) sweep(ctx context.Context) {
	logger := log.FromCtx(ctx)

	posts, err := w.posts.GetUnembedded(ctx, w.batch)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list unembedded posts")
	}
	for _, p := range posts {
		if ctx.Err() != nil {
			return
		}
		vec, err := w.enc.EncodePassage(ctx, postPassage(p))
		if err != nil {
			logger.Warn().Err(err).Str("post_id", p.ID).Msg("failed to embed post")
			continue
		}
		if err := w.posts.UpdateEmbedding(ctx, p.ID, vec); err != nil {
			logger.Error().Err(err).Str("post_id", p.ID).Msg("failed to store post embedding")
		}
	}

	comments, err := w.comments.GetUnembedded(ctx, w.batch)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list unembedded comments")
	}
	for _, c := range comments {
		if ctx.Err() != nil {
			return
		}
		vec, err := w.enc.EncodePassage(ctx, commentPassage(c))
		if err != nil {
			logger.Warn().Err(err).Str("comment_id", c.ID).Msg("failed to embed comment")
			continue
		}
		if err := w.comments.UpdateEmbedding(ctx, c.ID, vec); err != nil {
			logger.Error().Err(err).Str("comment_id", c.ID).Msg("failed to store comment embedding")
		}
	}

	msgs, err := w.messages.GetUnembedded(ctx, w.batch)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list unembedded messages")
	}
	for _, m := range msgs {
		if ctx.Err() != nil {
			return
		}
		vec, err := w.enc.EncodePassage(ctx, messagePassage(m))
		if err != nil {
			logger.Warn().Err(err).Str("message_id", m.ID).Msg("failed to embed message")
			continue
		}
		if err := w.messages.UpdateEmbedding(ctx, m.ID, vec); err != nil {
			logger.Error().Err(err).Str("message_id", m.ID).Msg("failed to store message embedding")
		}
	}
}
