package poller

import (
	"context"
	"time"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/internal/service/ingest"
	"github.com/sandevgo/threadbot/pkg/log"
)

const (
	seenPostsCap    = 1000
	seenCommentsCap = 10000
)

// SubredditPoller watches the subreddit for new posts and comments,
// lands them in storage and hands the genuinely-new ones to the
// processor. The first cycle after startup fetches deep to rebuild the
// archive; later cycles fetch shallow.
type SubredditPoller struct {
	platform  core.Platform
	ingestor  *ingest.Ingestor
	processor *Processor
	posts     core.PostsRepository
	comments  core.CommentsRepository
	cfg       *config.AppConfig

	seenPosts    *seenSet
	seenComments *seenSet
	initialRun   bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSubredditPoller(platform core.Platform, ingestor *ingest.Ingestor, processor *Processor, posts core.PostsRepository, comments core.CommentsRepository, cfg *config.AppConfig) *SubredditPoller {
	return &SubredditPoller{
		platform:     platform,
		ingestor:     ingestor,
		processor:    processor,
		posts:        posts,
		comments:     comments,
		cfg:          cfg,
		seenPosts:    newSeenSet(seenPostsCap),
		seenComments: newSeenSet(seenCommentsCap),
		initialRun:   true,
		done:         make(chan struct{}),
	}
}

func (p *SubredditPoller) Start(ctx context.Context) error {
	// Everything already stored counts as seen, so a restart never
	// re-answers old items.
	if ids, err := p.posts.ListIDs(ctx); err != nil {
		return err
	} else {
		p.seenPosts.Seed(ids)
	}
	if ids, err := p.comments.ListIDs(ctx); err != nil {
		return err
	} else {
		p.seenComments.Seed(ids)
	}
	log.FromCtx(ctx).Info().
		Int("posts", p.seenPosts.Len()).
		Int("comments", p.seenComments.Len()).
		Msg("subreddit poller seeded from storage")

	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return nil
}

func (p *SubredditPoller) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
	}
	return nil
}

func (p *SubredditPoller) run(ctx context.Context) {
	defer close(p.done)

	interval := time.Duration(p.cfg.PollInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle is one fetch-store-process pass. Errors are logged and the
// next tick retries; seen ids are only recorded after processing so a
// failed pass gets another chance.
func (p *SubredditPoller) cycle(ctx context.Context) {
	logger := log.FromCtx(ctx)

	postLimit := p.cfg.PostLimit
	commentLimit := p.cfg.CommentLimit
	if p.initialRun {
		postLimit = p.cfg.InitialPostLimit
		commentLimit = p.cfg.InitialPostLimit
	}

	posts, err := p.platform.FetchNewPosts(ctx, postLimit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch posts")
		return
	}
	comments, err := p.platform.FetchNewComments(ctx, commentLimit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch comments")
		return
	}

	var newPosts []core.Post
	for _, post := range posts {
		if !p.seenPosts.Has(post.ID) {
			newPosts = append(newPosts, post)
		}
	}
	var newComments []core.Comment
	for _, comment := range comments {
		if !p.seenComments.Has(comment.ID) {
			newComments = append(newComments, comment)
		}
	}

	if len(newPosts) > 0 || len(newComments) > 0 {
		logger.Info().Int("posts", len(newPosts)).Int("comments", len(newComments)).Msg("new subreddit items")

		// Store before processing: retrieval and thread context for
		// this batch should include the batch itself.
		if _, err := p.ingestor.StoreComments(ctx, newComments); err != nil {
			logger.Error().Err(err).Msg("failed to store comments")
		}
		if _, err := p.ingestor.StorePosts(ctx, newPosts); err != nil {
			logger.Error().Err(err).Msg("failed to store posts")
		}

		if err := p.processor.ProcessPosts(ctx, newPosts); err != nil {
			return
		}
		if err := p.processor.ProcessComments(ctx, newComments); err != nil {
			return
		}

		for _, post := range posts {
			p.seenPosts.Add(post.ID)
		}
		for _, comment := range comments {
			p.seenComments.Add(comment.ID)
		}
	}

	if p.initialRun {
		logger.Info().Msg("initial deep fetch complete, switching to shallow poll limits")
		p.initialRun = false
	}
}
