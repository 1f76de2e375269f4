package ingest

import (
	"context"
	"fmt"

	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/internal/service/retrieval"
	"github.com/sandevgo/threadbot/pkg/log"
)

// Ingestor lands fetched platform items in storage. Inserts are
// id-keyed and idempotent; embedding happens later in the backfill
// worker so a slow embedding endpoint never stalls polling.
type Ingestor struct {
	posts    core.PostsRepository
	comments core.CommentsRepository
	messages core.MessagesRepository
}

func NewIngestor(posts core.PostsRepository, comments core.CommentsRepository, messages core.MessagesRepository) *Ingestor {
	return &Ingestor{
		posts:    posts,
		comments: comments,
		messages: messages,
	}
}

// StorePosts upserts the batch and reports how many were new.
func (i *Ingestor) StorePosts(ctx context.Context, posts []core.Post) (int, error) {
	stored := 0
	for _, p := range posts {
		inserted, err := i.posts.UpsertPost(ctx, p)
		if err != nil {
			return stored, fmt.Errorf("failed to store post %s: %w", p.ID, err)
		}
		if inserted {
			stored++
		}
	}
	if stored > 0 {
		log.FromCtx(ctx).Debug().Int("stored", stored).Msg("new posts ingested")
	}
	return stored, nil
}

func (i *Ingestor) StoreComments(ctx context.Context, comments []core.Comment) (int, error) {
	stored := 0
	for _, c := range comments {
		inserted, err := i.comments.UpsertComment(ctx, c)
		if err != nil {
			return stored, fmt.Errorf("failed to store comment %s: %w", c.ID, err)
		}
		if inserted {
			stored++
		}
	}
	if stored > 0 {
		log.FromCtx(ctx).Debug().Int("stored", stored).Msg("new comments ingested")
	}
	return stored, nil
}

func (i *Ingestor) StoreMessages(ctx context.Context, msgs []core.DirectMessage) (int, error) {
	stored := 0
	for _, m := range msgs {
		inserted, err := i.messages.UpsertMessage(ctx, m)
		if err != nil {
			return stored, fmt.Errorf("failed to store message %s: %w", m.ID, err)
		}
		if inserted {
			stored++
		}
	}
	if stored > 0 {
		log.FromCtx(ctx).Debug().Int("stored", stored).Msg("new messages ingested")
	}
	return stored, nil
}

// The passage templates keep embedded rows self-describing: the vector
// captures what kind of thing the text was, not just its words.

func postPassage(p core.Post) string {
	return retrieval.CleanText(fmt.Sprintf("Post Title: %s\nPost Content: %s", p.Title, p.Body))
}

func commentPassage(c core.Comment) string {
	return retrieval.CleanText(fmt.Sprintf("Comment on Post %s: %s", c.PostID, c.Body))
}

func messagePassage(m core.DirectMessage) string {
	return retrieval.CleanText(fmt.Sprintf("Message: %s", m.Body))
}
