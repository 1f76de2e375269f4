package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/internal/service/generate"
	"github.com/sandevgo/threadbot/pkg/log"
)

const (
	// itemPause spaces out replies so a burst of new items doesn't turn
	// the bot into a spammer.
	itemPause = 2 * time.Second

	// maxUserQueries bounds the query_user loop per item. The model is
	// told not to ask twice; this is the hard stop if it does anyway.
	maxUserQueries = 3

	overviewLimit = 25

	// dmFallback is sent when a direct message gets declined: unlike
	// posts and comments, staying silent in a DM reads as the bot being
	// broken.
	dmFallback = "I cannot help with this query."
)

// Responder runs the full generation flow for one task.
type Responder interface {
	Respond(ctx context.Context, task generate.Task) (generate.Outcome, error)
}

// ContextRetriever assembles the grounding context for a query.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string) (string, error)
}

// ThreadRenderer reconstructs the stored conversation around a comment.
type ThreadRenderer interface {
	Render(ctx context.Context, target core.Comment) (string, []string, error)
}

// Processor decides, per fetched item, whether and how the bot answers.
type Processor struct {
	platform  core.Platform
	retriever ContextRetriever
	responder Responder
	threads   ThreadRenderer
	posts     core.PostsRepository
	comments  core.CommentsRepository

	botUser string
	images  *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

func NewProcessor(platform core.Platform, retriever ContextRetriever, responder Responder, threads ThreadRenderer, posts core.PostsRepository, comments core.CommentsRepository, botUser string) *Processor {
	return &Processor{
		platform:  platform,
		retriever: retriever,
		responder: responder,
		threads:   threads,
		posts:     posts,
		comments:  comments,
		botUser:   botUser,
		images:    &http.Client{Timeout: 30 * time.Second},
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ProcessPosts answers each new post in order. A failure on one item is
// logged and the batch continues; only context cancellation stops it.
func (p *Processor) ProcessPosts(ctx context.Context, posts []core.Post) error {
	for _, post := range posts {
		if err := p.processPost(ctx, post); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.FromCtx(ctx).Error().Err(err).Str("post_id", post.ID).Msg("failed to process post")
		}
		if err := p.sleep(ctx, itemPause); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processPost(ctx context.Context, post core.Post) error {
	logger := log.FromCtx(ctx).With().Str("post_id", post.ID).Logger()

	contextText, err := p.retriever.RetrieveContext(ctx, post.Title+"\n"+post.Body)
	if err != nil {
		return err
	}

	task := generate.Task{
		Title:   post.Title,
		Body:    post.Body,
		Context: contextText,
	}
	if post.HasImage() {
		if img := p.fetchImage(ctx, post.URL); img != nil {
			task.Images = append(task.Images, *img)
		}
	}

	out, err := p.respond(ctx, task)
	if err != nil {
		return err
	}
	if out.Kind != generate.OutcomeReply {
		logger.Info().Msg("declined to comment on post")
		return nil
	}

	if err := p.platform.CommentOnPost(ctx, post.ID, out.Text); err != nil {
		return err
	}
	logger.Info().Int("support", out.Verdict.SupportCount).Msg("commented on post")
	return nil
}

// ProcessComments answers comments that address the bot, either by a
// u/<name> mention or by replying to one of its comments.
func (p *Processor) ProcessComments(ctx context.Context, comments []core.Comment) error {
	for _, comment := range comments {
		if err := p.processComment(ctx, comment); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.FromCtx(ctx).Error().Err(err).Str("comment_id", comment.ID).Msg("failed to process comment")
		}
		if err := p.sleep(ctx, itemPause); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processComment(ctx context.Context, comment core.Comment) error {
	logger := log.FromCtx(ctx).With().Str("comment_id", comment.ID).Logger()

	if strings.EqualFold(comment.Author, p.botUser) {
		return nil
	}
	addressed, err := p.addressesBot(ctx, comment)
	if err != nil {
		return err
	}
	if !addressed {
		logger.Debug().Msg("comment does not address the bot, skipping")
		return nil
	}

	post, err := p.posts.GetPost(ctx, comment.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		logger.Debug().Str("post_id", comment.PostID).Msg("parent post not stored, skipping")
		return nil
	}

	contextText, err := p.retriever.RetrieveContext(ctx, post.Title+"\n"+comment.Body)
	if err != nil {
		return err
	}
	if contextText == core.NoContext {
		logger.Info().Msg("no grounding context for comment, skipping")
		return nil
	}

	transcript, threadIDs, err := p.threads.Render(ctx, comment)
	if err != nil {
		return err
	}
	others, err := p.comments.GetPostComments(ctx, comment.PostID, threadIDs)
	if err != nil {
		return err
	}

	var extra strings.Builder
	extra.WriteString("Comment thread:\n")
	extra.WriteString(transcript)
	if len(others) > 0 {
		extra.WriteString("\n\nOther comments on the post:\n")
		for _, c := range others {
			fmt.Fprintf(&extra, "u/%s: %s\n", c.Author, strings.TrimSpace(c.Body))
		}
	}
	extra.WriteString("\n\nArchive context:\n")
	extra.WriteString(contextText)
	extra.WriteString("\n\nYou do not have to reply to this comment. Only reply when the user is asking for help; do not start conversations.")

	out, err := p.respond(ctx, generate.Task{
		Title:        "Comment on post: " + post.Title,
		Body:         comment.Body,
		ExtraContext: extra.String(),
	})
	if err != nil {
		return err
	}
	if out.Kind != generate.OutcomeReply {
		logger.Info().Msg("declined to reply to comment")
		return nil
	}

	if err := p.platform.ReplyToComment(ctx, comment.ID, out.Text); err != nil {
		return err
	}
	logger.Info().Int("support", out.Verdict.SupportCount).Msg("replied to comment")
	return nil
}

// addressesBot reports whether the comment mentions the bot by name or
// replies to one of its comments.
func (p *Processor) addressesBot(ctx context.Context, comment core.Comment) (bool, error) {
	if strings.Contains(strings.ToLower(comment.Body), "u/"+strings.ToLower(p.botUser)) {
		return true, nil
	}
	if comment.ParentID == "" {
		return false, nil
	}
	parent, err := p.comments.GetComment(ctx, comment.ParentID)
	if err != nil {
		return false, err
	}
	return parent != nil && strings.EqualFold(parent.Author, p.botUser), nil
}

// ProcessMessages answers direct messages. Declines get an explicit
// fallback reply instead of silence.
func (p *Processor) ProcessMessages(ctx context.Context, msgs []core.DirectMessage) error {
	for _, msg := range msgs {
		if err := p.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.FromCtx(ctx).Error().Err(err).Str("message_id", msg.ID).Msg("failed to process message")
		}
		if err := p.sleep(ctx, itemPause); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, msg core.DirectMessage) error {
	logger := log.FromCtx(ctx).With().Str("message_id", msg.ID).Logger()

	contextText, err := p.retriever.RetrieveContext(ctx, msg.Body)
	if err != nil {
		return err
	}

	out, err := p.respond(ctx, generate.Task{
		Title:        "Direct Message",
		Body:         msg.Body,
		Context:      contextText,
		ExtraContext: "This message is from u/" + msg.Sender,
	})
	if err != nil {
		return err
	}

	text := out.Text
	if out.Kind != generate.OutcomeReply {
		text = dmFallback + core.AttributionSuffix
		logger.Info().Msg("sending fallback reply to message")
	}
	if err := p.platform.ReplyToMessage(ctx, msg.ID, text); err != nil {
		return err
	}
	logger.Info().Str("sender", msg.Sender).Msg("replied to message")
	return nil
}

// respond runs the generation flow, serving a bounded number of
// query_user rounds by appending the named user's public overview to
// the task context.
func (p *Processor) respond(ctx context.Context, task generate.Task) (generate.Outcome, error) {
	for round := 0; ; round++ {
		out, err := p.responder.Respond(ctx, task)
		if err != nil {
			return generate.Outcome{}, err
		}
		if out.Kind != generate.OutcomeQueryUser {
			return out, nil
		}
		if round >= maxUserQueries {
			log.FromCtx(ctx).Warn().Str("username", out.Text).Msg("query_user budget spent, declining")
			return generate.Outcome{Kind: generate.OutcomeDecline}, nil
		}

		username := out.Text
		items, err := p.platform.FetchUserOverview(ctx, username, overviewLimit)
		if err != nil {
			return generate.Outcome{}, err
		}
		task.ExtraContext = appendOverview(task.ExtraContext, username, items)
		log.FromCtx(ctx).Debug().Str("username", username).Int("items", len(items)).Msg("fetched user overview for retry")
	}
}

func appendOverview(extra, username string, items []core.UserItem) string {
	var b strings.Builder
	b.WriteString(extra)
	if extra != "" {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "User %s context:\n", username)
	if len(items) == 0 {
		b.WriteString("(no public history found)")
		return b.String()
	}
	for _, item := range items {
		kind := "Comment"
		if item.Kind == "post" {
			kind = "Post"
		}
		fmt.Fprintf(&b, "%s in r/%s: %s\n", kind, item.Subreddit, item.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// fetchImage downloads an attached image; failures degrade to a
// text-only prompt.
func (p *Processor) fetchImage(ctx context.Context, rawURL string) *core.ImageAttachment {
	logger := log.FromCtx(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("bad image url")
		return nil
	}
	resp, err := p.images.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("failed to fetch image")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", resp.StatusCode).Str("url", rawURL).Msg("image fetch refused")
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("failed to read image body")
		return nil
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return &core.ImageAttachment{MimeType: mime, Data: data}
}
