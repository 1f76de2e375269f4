package poller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/internal/service/generate"
)

type fakePlatform struct {
	core.Platform

	postReplies    map[string]string
	commentReplies map[string]string
	messageReplies map[string]string
	overview       []core.UserItem
	overviewCalls  int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		postReplies:    map[string]string{},
		commentReplies: map[string]string{},
		messageReplies: map[string]string{},
	}
}

func (f *fakePlatform) CommentOnPost(_ context.Context, postID, text string) error {
	f.postReplies[postID] = text
	return nil
}

func (f *fakePlatform) ReplyToComment(_ context.Context, commentID, text string) error {
	f.commentReplies[commentID] = text
	return nil
}

func (f *fakePlatform) ReplyToMessage(_ context.Context, messageID, text string) error {
	f.messageReplies[messageID] = text
	return nil
}

func (f *fakePlatform) FetchUserOverview(_ context.Context, _ string, _ int) ([]core.UserItem, error) {
	f.overviewCalls++
	return f.overview, nil
}

type fakeRetriever struct {
	context string
}

func (f *fakeRetriever) RetrieveContext(context.Context, string) (string, error) {
	return f.context, nil
}

type fakeResponder struct {
	outcomes []generate.Outcome
	calls    int
	tasks    []generate.Task
}

func (f *fakeResponder) Respond(_ context.Context, task generate.Task) (generate.Outcome, error) {
	f.tasks = append(f.tasks, task)
	i := f.calls
	f.calls++
	if i < len(f.outcomes) {
		return f.outcomes[i], nil
	}
	return generate.Outcome{Kind: generate.OutcomeDecline}, nil
}

type fakeThreads struct{}

func (fakeThreads) Render(_ context.Context, target core.Comment) (string, []string, error) {
	return "u/someone: earlier context", []string{target.ID}, nil
}

type stubPosts struct {
	core.PostsRepository

	post *core.Post
}

func (s *stubPosts) GetPost(context.Context, string) (*core.Post, error) {
	return s.post, nil
}

type stubComments struct {
	core.CommentsRepository

	byID map[string]*core.Comment
}

func (s *stubComments) GetComment(_ context.Context, id string) (*core.Comment, error) {
	return s.byID[id], nil
}

func (s *stubComments) GetPostComments(context.Context, string, []string) ([]core.Comment, error) {
	return nil, nil
}

func newTestProcessor(platform *fakePlatform, responder *fakeResponder, retrCtx string, comments *stubComments) *Processor {
	if comments == nil {
		comments = &stubComments{byID: map[string]*core.Comment{}}
	}
	p := NewProcessor(
		platform,
		&fakeRetriever{context: retrCtx},
		responder,
		fakeThreads{},
		&stubPosts{post: &core.Post{ID: "p1", Title: "the post", Author: "op"}},
		comments,
		"helperbot",
	)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestProcessPosts_PostsReply(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{outcomes: []generate.Outcome{
		{Kind: generate.OutcomeReply, Text: "here is how"},
	}}
	p := newTestProcessor(platform, responder, "some archive context", nil)

	err := p.ProcessPosts(context.Background(), []core.Post{{ID: "p1", Title: "q", Body: "body"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.postReplies["p1"] != "here is how" {
		t.Errorf("post reply = %q", platform.postReplies["p1"])
	}
}

func TestProcessPosts_DeclineStaysSilent(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{outcomes: []generate.Outcome{{Kind: generate.OutcomeDecline}}}
	p := newTestProcessor(platform, responder, "ctx", nil)

	if err := p.ProcessPosts(context.Background(), []core.Post{{ID: "p1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(platform.postReplies) != 0 {
		t.Errorf("declined post still got a reply: %v", platform.postReplies)
	}
}

func TestProcessComments_IgnoresUnaddressed(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{}
	p := newTestProcessor(platform, responder, "ctx", nil)

	comments := []core.Comment{
		{ID: "c1", PostID: "p1", Author: "helperbot", Body: "my own reply"},
		{ID: "c2", PostID: "p1", Author: "someone", Body: "just chatting"},
	}
	if err := p.ProcessComments(context.Background(), comments); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if responder.calls != 0 {
		t.Errorf("responder ran %d times for unaddressed comments", responder.calls)
	}
}

func TestProcessComments_MentionTriggersReply(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{outcomes: []generate.Outcome{
		{Kind: generate.OutcomeReply, Text: "happy to help"},
	}}
	p := newTestProcessor(platform, responder, "ctx", nil)

	comment := core.Comment{ID: "c1", PostID: "p1", Author: "someone", Body: "hey u/HelperBot can you explain?"}
	if err := p.ProcessComments(context.Background(), []core.Comment{comment}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.commentReplies["c1"] != "happy to help" {
		t.Errorf("comment reply = %q", platform.commentReplies["c1"])
	}
	// Comment prompts carry the discussion as extra context, not as the
	// archive block.
	if responder.tasks[0].Context != "" {
		t.Errorf("comment task carried archive context: %q", responder.tasks[0].Context)
	}
	if !strings.Contains(responder.tasks[0].ExtraContext, "earlier context") {
		t.Errorf("thread transcript missing from extra context")
	}
}

func TestProcessComments_ReplyToBotCounts(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{outcomes: []generate.Outcome{
		{Kind: generate.OutcomeReply, Text: "following up"},
	}}
	comments := &stubComments{byID: map[string]*core.Comment{
		"parent": {ID: "parent", Author: "helperbot", Body: "my earlier answer"},
	}}
	p := newTestProcessor(platform, responder, "ctx", comments)

	comment := core.Comment{ID: "c1", PostID: "p1", ParentID: "parent", Author: "someone", Body: "thanks, one more thing"}
	if err := p.ProcessComments(context.Background(), []core.Comment{comment}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.commentReplies["c1"] != "following up" {
		t.Errorf("comment reply = %q", platform.commentReplies["c1"])
	}
}

func TestProcessComments_NoArchiveContextSkips(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{}
	p := newTestProcessor(platform, responder, core.NoContext, nil)

	comment := core.Comment{ID: "c1", PostID: "p1", Author: "someone", Body: "u/helperbot help"}
	if err := p.ProcessComments(context.Background(), []core.Comment{comment}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if responder.calls != 0 {
		t.Errorf("responder ran without grounding context")
	}
}

func TestProcessMessages_DeclineSendsFallback(t *testing.T) {
	platform := newFakePlatform()
	responder := &fakeResponder{outcomes: []generate.Outcome{{Kind: generate.OutcomeDecline}}}
	p := newTestProcessor(platform, responder, "ctx", nil)

	msg := core.DirectMessage{ID: "m1", Sender: "someone", Body: "hi"}
	if err := p.ProcessMessages(context.Background(), []core.DirectMessage{msg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := platform.messageReplies["m1"]
	if !strings.HasPrefix(got, dmFallback) {
		t.Errorf("fallback reply = %q", got)
	}
	if !strings.HasSuffix(got, core.AttributionSuffix) {
		t.Errorf("fallback reply missing attribution: %q", got)
	}
}

func TestRespond_QueryUserLoopBounded(t *testing.T) {
	platform := newFakePlatform()
	platform.overview = []core.UserItem{{Kind: "comment", Subreddit: "test", Content: "something"}}
	responder := &fakeResponder{outcomes: []generate.Outcome{
		{Kind: generate.OutcomeQueryUser, Text: "user_a"},
		{Kind: generate.OutcomeQueryUser, Text: "user_b"},
		{Kind: generate.OutcomeQueryUser, Text: "user_c"},
		{Kind: generate.OutcomeQueryUser, Text: "user_d"},
		{Kind: generate.OutcomeQueryUser, Text: "user_e"},
	}}
	p := newTestProcessor(platform, responder, "ctx", nil)

	out, err := p.respond(context.Background(), generate.Task{Title: "q", Context: "ctx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != generate.OutcomeDecline {
		t.Errorf("kind = %v, want decline after budget spent", out.Kind)
	}
	if platform.overviewCalls != maxUserQueries {
		t.Errorf("overview fetched %d times, want %d", platform.overviewCalls, maxUserQueries)
	}
}

func TestRespond_QueryUserFeedsOverviewIntoRetry(t *testing.T) {
	platform := newFakePlatform()
	platform.overview = []core.UserItem{{Kind: "post", Subreddit: "test", Content: "their old post"}}
	responder := &fakeResponder{outcomes: []generate.Outcome{
		{Kind: generate.OutcomeQueryUser, Text: "target_user"},
		{Kind: generate.OutcomeReply, Text: "now I can answer"},
	}}
	p := newTestProcessor(platform, responder, "ctx", nil)

	out, err := p.respond(context.Background(), generate.Task{Title: "q", Context: "ctx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != generate.OutcomeReply {
		t.Fatalf("kind = %v, want reply", out.Kind)
	}
	second := responder.tasks[1].ExtraContext
	if !strings.Contains(second, "User target_user context:") || !strings.Contains(second, "their old post") {
		t.Errorf("overview not threaded into retry: %q", second)
	}
}

func TestGroupBySender(t *testing.T) {
	msgs := []core.DirectMessage{
		{ID: "m3", Sender: "alice", Body: "third", CreatedUTC: 300},
		{ID: "m2", Sender: "bob", Body: "other", CreatedUTC: 250},
		{ID: "m1", Sender: "alice", Body: "first", CreatedUTC: 100},
	}

	got := groupBySender(msgs)
	if len(got) != 2 {
		t.Fatalf("got %d groups, want 2", len(got))
	}

	alice := got[0]
	if alice.Sender != "alice" {
		t.Fatalf("first group sender = %q", alice.Sender)
	}
	if alice.Body != "first\nthird" {
		t.Errorf("bodies = %q, want oldest first", alice.Body)
	}
	if alice.ID != "m3" {
		t.Errorf("group id = %q, want the newest message", alice.ID)
	}
}

func TestSeenSet_TrimsOldest(t *testing.T) {
	s := newSeenSet(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Add(id)
	}
	if s.Has("a") {
		t.Error("oldest id survived the trim")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !s.Has(id) {
			t.Errorf("recent id %q missing", id)
		}
	}
	if s.Len() != 3 {
		t.Errorf("len = %d, want 3", s.Len())
	}
}
