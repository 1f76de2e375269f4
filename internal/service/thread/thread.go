package thread

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/pkg/log"
)

// Builder reconstructs the conversation around one comment from stored
// rows: the parent chain up to the post, plus everything nested under
// the comment itself.
type Builder struct {
	posts    core.PostsRepository
	comments core.CommentsRepository
}

func NewBuilder(posts core.PostsRepository, comments core.CommentsRepository) *Builder {
	return &Builder{posts: posts, comments: comments}
}

// Render returns the thread as a plain-text transcript in
// chronological order, headed by the post when it is stored, together
// with the ids of every comment in the thread. Broken parent pointers
// and cycles degrade to a partial thread, never an error: some context
// beats none.
func (b *Builder) Render(ctx context.Context, target core.Comment) (string, []string, error) {
	visited := map[string]bool{target.ID: true}

	ancestors, err := b.collectAncestors(ctx, target, visited)
	if err != nil {
		return "", nil, err
	}
	descendants, err := b.collectDescendants(ctx, target.ID, visited)
	if err != nil {
		return "", nil, err
	}

	all := make([]core.Comment, 0, len(ancestors)+1+len(descendants))
	all = append(all, ancestors...)
	all = append(all, target)
	all = append(all, descendants...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedUTC < all[j].CreatedUTC })

	var sb strings.Builder
	if post, err := b.posts.GetPost(ctx, target.PostID); err == nil && post != nil {
		fmt.Fprintf(&sb, "Post by u/%s: %s\n", post.Author, post.Title)
		if body := strings.TrimSpace(post.Body); body != "" {
			sb.WriteString(body)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	ids := make([]string, 0, len(all))
	for _, c := range all {
		fmt.Fprintf(&sb, "u/%s: %s\n", c.Author, strings.TrimSpace(c.Body))
		ids = append(ids, c.ID)
	}
	return strings.TrimSpace(sb.String()), ids, nil
}

// collectAncestors walks parent pointers toward the post root. The
// visited set guards against malformed data pointing in a loop.
func (b *Builder) collectAncestors(ctx context.Context, target core.Comment, visited map[string]bool) ([]core.Comment, error) {
	var chain []core.Comment
	parentID := target.ParentID
	for parentID != "" && !visited[parentID] {
		visited[parentID] = true
		parent, err := b.comments.GetComment(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent comment %s: %w", parentID, err)
		}
		if parent == nil {
			log.FromCtx(ctx).Debug().Str("comment_id", parentID).Msg("parent comment not stored, thread truncated")
			break
		}
		chain = append(chain, *parent)
		parentID = parent.ParentID
	}
	return chain, nil
}

// collectDescendants breadth-first expands replies under rootID.
func (b *Builder) collectDescendants(ctx context.Context, rootID string, visited map[string]bool) ([]core.Comment, error) {
	var out []core.Comment
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := b.comments.GetChildren(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load replies to %s: %w", id, err)
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}
