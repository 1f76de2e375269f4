package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
)

func testConfig() *config.RetrievalConfig {
	return &config.RetrievalConfig{
		ReferenceCutoff: 0.5,
		ValidatorCutoff: 0.6,
		MinSupport:      2,
		RawTopK:         10,
		MergedTopK:      5,
		ReferenceTopK:   3,
		ValidatorTopK:   10,
	}
}

type fakeEncoder struct {
	vector []float32
}

func (f *fakeEncoder) EncodeQuery(context.Context, string) ([]float32, error) {
	return f.vector, nil
}

func (f *fakeEncoder) EncodePassage(context.Context, string) ([]float32, error) {
	return f.vector, nil
}

type fakePosts struct {
	core.PostsRepository

	similar      []core.ScoredRow
	keyword      []core.ScoredRow
	keywordCalls int
}

func (f *fakePosts) SearchSimilar(context.Context, []float32, int) ([]core.ScoredRow, error) {
	return f.similar, nil
}

func (f *fakePosts) SearchKeyword(context.Context, string, int) ([]core.ScoredRow, error) {
	f.keywordCalls++
	return f.keyword, nil
}

type fakeComments struct {
	core.CommentsRepository

	similar      []core.ScoredRow
	keyword      []core.ScoredRow
	above        []core.ScoredRow
	replies      map[string][]core.Comment
	keywordCalls int
}

func (f *fakeComments) SearchSimilar(context.Context, []float32, int) ([]core.ScoredRow, error) {
	return f.similar, nil
}

func (f *fakeComments) SearchKeyword(context.Context, string, int) ([]core.ScoredRow, error) {
	f.keywordCalls++
	return f.keyword, nil
}

func (f *fakeComments) SearchSimilarAbove(context.Context, []float32, float32, int) ([]core.ScoredRow, error) {
	return f.above, nil
}

func (f *fakeComments) GetPostComments(_ context.Context, postID string, _ []string) ([]core.Comment, error) {
	return f.replies[postID], nil
}

func newTestEngine(posts *fakePosts, comments *fakeComments) *Engine {
	return NewEngine(posts, comments, &fakeEncoder{vector: []float32{1, 0}}, &Library{}, testConfig())
}

func TestEngine_NoHitsReturnsSentinel(t *testing.T) {
	eng := newTestEngine(&fakePosts{}, &fakeComments{})

	got, err := eng.RetrieveContext(context.Background(), "how do placements work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != core.NoContext {
		t.Errorf("got %q, want the no-context sentinel", got)
	}
}

func TestEngine_EmptyQueryShortCircuits(t *testing.T) {
	posts := &fakePosts{}
	eng := newTestEngine(posts, &fakeComments{})

	got, err := eng.RetrieveContext(context.Background(), "   @@@@   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != core.NoContext {
		t.Errorf("got %q, want the no-context sentinel", got)
	}
	if posts.keywordCalls != 0 {
		t.Errorf("keyword search ran %d times on an empty query", posts.keywordCalls)
	}
}

func TestEngine_SkipsKeywordLegWithoutTokens(t *testing.T) {
	posts := &fakePosts{
		similar: []core.ScoredRow{{ID: "p1", Title: "rules", Author: "mod", Score: 0.9}},
	}
	comments := &fakeComments{}
	eng := newTestEngine(posts, comments)

	// Every token is numeric or too short, so the FTS legs never run.
	if _, err := eng.RetrieveContext(context.Background(), "42 7 ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts.keywordCalls != 0 || comments.keywordCalls != 0 {
		t.Errorf("keyword legs ran (%d posts, %d comments), want none", posts.keywordCalls, comments.keywordCalls)
	}
}

func TestEngine_RendersPostsWithReplies(t *testing.T) {
	posts := &fakePosts{
		similar: []core.ScoredRow{{ID: "p1", Title: "weekly thread", Author: "mod", Body: "ask here", Score: 0.8}},
	}
	comments := &fakeComments{
		similar: []core.ScoredRow{{ID: "c9", Author: "old_hand", Body: "check the wiki", Score: 0.7}},
		replies: map[string][]core.Comment{
			"p1": {{ID: "c1", Author: "alice", Body: "answered here"}},
		},
	}
	eng := newTestEngine(posts, comments)

	got, err := eng.RetrieveContext(context.Background(), "where do I ask questions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"weekly thread", "u/alice: answered here", "background only", "u/old_hand: check the wiki"} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
}

func TestEngine_MergesKeywordAndSemanticHits(t *testing.T) {
	posts := &fakePosts{
		similar: []core.ScoredRow{{ID: "p1", Title: "alpha", Author: "a", Score: 0.9}},
		keyword: []core.ScoredRow{
			{ID: "p1", Title: "alpha", Author: "a", Score: 0},
			{ID: "p2", Title: "beta", Author: "b", Score: 0},
		},
	}
	eng := newTestEngine(posts, &fakeComments{})

	got, err := eng.RetrieveContext(context.Background(), "alpha beta question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(got, `"alpha"`) != 1 {
		t.Errorf("duplicate post not merged:\n%s", got)
	}
	if !strings.Contains(got, `"beta"`) {
		t.Errorf("keyword-only hit missing:\n%s", got)
	}
}

func TestValidator_RequiresMinimumSupport(t *testing.T) {
	tests := []struct {
		name     string
		above    []core.ScoredRow
		reliable bool
	}{
		{"no support", nil, false},
		{"one supporter", []core.ScoredRow{{ID: "c1", Score: 0.7}}, false},
		{"two supporters", []core.ScoredRow{{ID: "c1", Score: 0.7}, {ID: "c2", Score: 0.65}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(&fakeComments{above: tt.above}, &fakeEncoder{vector: []float32{1, 0}}, testConfig())

			verdict, err := v.Validate(context.Background(), "the fee is waived for students")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if verdict.Reliable != tt.reliable {
				t.Errorf("reliable = %v, want %v", verdict.Reliable, tt.reliable)
			}
			if verdict.SupportCount != len(tt.above) {
				t.Errorf("support count = %d, want %d", verdict.SupportCount, len(tt.above))
			}
		})
	}
}

func TestValidator_EmptyDraftIsUnreliable(t *testing.T) {
	v := NewValidator(&fakeComments{}, &fakeEncoder{vector: []float32{1, 0}}, testConfig())

	verdict, err := v.Validate(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Reliable {
		t.Error("empty draft judged reliable")
	}
}
