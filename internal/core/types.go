package core

import "strings"

const (
	BotName       = "threadbot"
	BotUserAgent  = "threadbot/0.1.0 (subreddit moderation bot)"
	BotVersion    = "0.1.0"
	RepositoryURL = "https://github.com/sandevgo/threadbot"
)

const (
	// DeclineMarker is the sentinel reply text meaning "intentionally
	// withheld". Every downstream consumer checks for it instead of an
	// error channel.
	DeclineMarker = "0canthelpwiththisquery0"

	// AttributionSuffix is appended exactly once to every reply that
	// actually gets posted.
	AttributionSuffix = "\n\n*I'm a bot*⋆.˚ ᡣ𐭩 .𖥔˚"

	// NoContext is the control value retrieval returns when nothing at
	// all was found. The orchestrator maps it directly to a decline
	// without spending a model call.
	NoContext = "No context available"
)

// Post is a stored platform submission.
type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"selftext"`
	Author     string    `json:"author"`
	CreatedUTC int64     `json:"created_utc"`
	URL        string    `json:"url,omitempty"`
	PostHint   string    `json:"post_hint,omitempty"`
	Embedding  []float32 `json:"-"`
}

// HasImage reports whether the post links an image attachment.
func (p Post) HasImage() bool {
	return p.PostHint == "image" && p.URL != ""
}

// Comment is a stored platform comment. ParentID is empty for top-level
// comments (their parent is the post itself).
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	CreatedUTC int64     `json:"created_utc"`
	Embedding  []float32 `json:"-"`
}

// DirectMessage is a stored private message.
type DirectMessage struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	CreatedUTC int64     `json:"created_utc"`
	Embedding  []float32 `json:"-"`
}

// UserItem is one entry of a user's public overview.
type UserItem struct {
	Kind      string `json:"kind"` // "post" or "comment"
	Subreddit string `json:"subreddit"`
	Content   string `json:"content"`
}

// Action tags the two allowed model response shapes.
type Action string

const (
	ActionReply     Action = "reply"
	ActionQueryUser Action = "query_user"
)

// ModelResponse is the structured value the model must return. Exactly
// one of the two shapes is valid: {action: reply, text} carries the reply
// body, {action: query_user, text} carries a bare username.
type ModelResponse struct {
	Action Action `json:"action"`
	Text   string `json:"text"`
}

// Valid reports whether the response matches one of the two allowed shapes.
func (r ModelResponse) Valid() bool {
	if r.Text == "" {
		return false
	}
	return r.Action == ActionReply || r.Action == ActionQueryUser
}

// Declined reports whether the response carries the decline sentinel.
func (r ModelResponse) Declined() bool {
	return r.Action == ActionReply && strings.Contains(r.Text, DeclineMarker)
}

// ScoredRow is one merged retrieval hit. Score is cosine similarity in
// [0,1] for semantic hits and 0 for keyword-only hits.
type ScoredRow struct {
	ID     string
	PostID string
	Title  string
	Body   string
	Author string
	Score  float32
}

// Verdict is the corpus-support judgment on a drafted reply. It is
// produced fresh per validation and never persisted.
type Verdict struct {
	Reliable     bool
	SupportCount int
	Supporting   []ScoredRow
}
