package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/threadbot/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "app-id", user)
		assert.Equal(t, "app-secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":3600}`)
	})
	mux.Handle("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := NewClient(&config.RedditConfig{
		Username:  "helperbot",
		Password:  "hunter2",
		AppID:     "app-id",
		AppSecret: "app-secret",
		Subreddit: "testsub",
	})
	c.authURL = server.URL
	c.apiURL = server.URL
	return c, server
}

func TestFetchNewPosts(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/testsub/new", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"children":[
			{"kind":"t3","data":{"id":"p1","title":"hello","selftext":"body","author":"alice","created_utc":100,"post_hint":"image","url":"https://i.example/x.png"}}
		]}}`)
	}))

	posts, err := c.FetchNewPosts(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, "hello", posts[0].Title)
	assert.True(t, posts[0].HasImage())
	assert.EqualValues(t, 100, posts[0].CreatedUTC)
}

func TestFetchNewComments_ParsesParents(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/testsub/comments", r.URL.Path)
		fmt.Fprint(w, `{"data":{"children":[
			{"kind":"t1","data":{"id":"c1","body":"top level","author":"bob","link_id":"t3_p1","parent_id":"t3_p1","created_utc":10}},
			{"kind":"t1","data":{"id":"c2","body":"nested","author":"eve","link_id":"t3_p1","parent_id":"t1_c1","created_utc":20}}
		]}}`)
	}))

	comments, err := c.FetchNewComments(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	assert.Equal(t, "p1", comments[0].PostID)
	assert.Empty(t, comments[0].ParentID, "top-level comment has no comment parent")
	assert.Equal(t, "c1", comments[1].ParentID)
}

func TestFetchNewMessages_FiltersNonDMs(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/inbox", r.URL.Path)
		fmt.Fprint(w, `{"data":{"children":[
			{"kind":"t4","data":{"id":"m1","body":"hi","author":"alice","created_utc":1}},
			{"kind":"t4","data":{"id":"m2","body":"reply","author":"bob","was_comment":true,"created_utc":2}},
			{"kind":"t1","data":{"id":"m3","body":"comment","author":"carol","created_utc":3}},
			{"kind":"t4","data":{"id":"m4","body":"self","author":"helperbot","created_utc":4}}
		]}}`)
	}))

	msgs, err := c.FetchNewMessages(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "alice", msgs[0].Sender)
}

func TestCommentOnPost_SubmitsThingID(t *testing.T) {
	var gotThing, gotText string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/comment", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotThing = r.Form.Get("thing_id")
		gotText = r.Form.Get("text")
		fmt.Fprint(w, `{}`)
	}))

	require.NoError(t, c.CommentOnPost(context.Background(), "p1", "my answer"))
	assert.Equal(t, "t3_p1", gotThing)
	assert.Equal(t, "my answer", gotText)
}

func TestFetchUserOverview_MapsKinds(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/someone/overview", r.URL.Path)
		fmt.Fprint(w, `{"data":{"children":[
			{"kind":"t3","data":{"title":"a post","selftext":"text","subreddit":"testsub"}},
			{"kind":"t1","data":{"body":"a comment","subreddit":"testsub"}},
			{"kind":"t5","data":{"subreddit":"testsub"}}
		]}}`)
	}))

	items, err := c.FetchUserOverview(context.Background(), "someone", 25)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "post", items[0].Kind)
	assert.Equal(t, "a post text", items[0].Content)
	assert.Equal(t, "comment", items[1].Kind)
}

func TestTokenReusedAcrossCalls(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"data":{"children":[]}}`)
	}))

	_, err := c.FetchNewPosts(context.Background(), 5)
	require.NoError(t, err)
	_, err = c.FetchNewPosts(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "tok-1", c.token)
}
