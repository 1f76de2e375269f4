package core

import "context"

// PostsRepository persists platform submissions and serves both retrieval
// legs over them. Upserts are keyed by the platform id: re-ingesting a
// stored id is a no-op.
type PostsRepository interface {
	// UpsertPost stores the post if its id is unseen. Returns true when a
	// row was actually inserted.
	UpsertPost(ctx context.Context, post Post) (bool, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	ListIDs(ctx context.Context) ([]string, error)

	// SearchSimilar returns the top-limit posts with a stored embedding
	// ordered by cosine similarity to the query vector.
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]ScoredRow, error)
	// SearchKeyword runs a tokenized full-text query. Best-effort: callers
	// treat an error as an empty result set.
	SearchKeyword(ctx context.Context, query string, limit int) ([]ScoredRow, error)

	GetUnembedded(ctx context.Context, limit int) ([]Post, error)
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error
}

// CommentsRepository persists comments, serves retrieval and supports
// parent/child thread reconstruction.
type CommentsRepository interface {
	UpsertComment(ctx context.Context, comment Comment) (bool, error)
	GetComment(ctx context.Context, id string) (*Comment, error)
	GetChildren(ctx context.Context, parentID string) ([]Comment, error)
	// GetPostComments returns all comments on a post oldest first,
	// excluding the given ids.
	GetPostComments(ctx context.Context, postID string, exclude []string) ([]Comment, error)
	ListIDs(ctx context.Context) ([]string, error)

	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]ScoredRow, error)
	// SearchSimilarAbove keeps only hits scoring strictly above threshold.
	SearchSimilarAbove(ctx context.Context, vector []float32, threshold float32, limit int) ([]ScoredRow, error)
	SearchKeyword(ctx context.Context, query string, limit int) ([]ScoredRow, error)

	GetUnembedded(ctx context.Context, limit int) ([]Comment, error)
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error
}

// MessagesRepository persists direct messages.
type MessagesRepository interface {
	UpsertMessage(ctx context.Context, msg DirectMessage) (bool, error)
	HasMessage(ctx context.Context, id string) (bool, error)
	GetUnembedded(ctx context.Context, limit int) ([]DirectMessage, error)
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error
}
