package core

import "context"

// ModelTier selects the capability/cost trade-off for one generation call.
type ModelTier int

const (
	// TierPrimary is the higher-capability model used on early attempts.
	TierPrimary ModelTier = iota
	// TierFallback is the cheaper model spent only on the final attempt.
	TierFallback
)

// ImageAttachment is inline image data passed along with a prompt.
type ImageAttachment struct {
	MimeType string
	Data     []byte
}

// GenerateRequest is one schema-constrained model invocation. APIKey is
// filled by the caller from the credential rotation pool.
type GenerateRequest struct {
	System string
	Prompt string
	Images []ImageAttachment
	Tier   ModelTier
	APIKey string
}

// GenerativeModel produces raw structured-output text; parsing and shape
// validation stay with the caller.
type GenerativeModel interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// DualEncoder embeds text under the two distinct conventions. Query and
// passage encodings of the same text are NOT interchangeable; mixing them
// makes similarity scores meaningless.
type DualEncoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	EncodePassage(ctx context.Context, text string) ([]float32, error)
	Dims() int
}

// Platform is the discussion-platform collaborator: "list new items" and
// "submit a reply" capabilities, nothing more.
type Platform interface {
	FetchNewPosts(ctx context.Context, limit int) ([]Post, error)
	FetchNewComments(ctx context.Context, limit int) ([]Comment, error)
	FetchNewMessages(ctx context.Context, limit int) ([]DirectMessage, error)

	CommentOnPost(ctx context.Context, postID, text string) error
	ReplyToComment(ctx context.Context, commentID, text string) error
	ReplyToMessage(ctx context.Context, messageID, text string) error

	FetchUserOverview(ctx context.Context, username string, limit int) ([]UserItem, error)
}
