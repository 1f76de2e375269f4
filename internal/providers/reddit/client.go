package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/threadbot/internal/config"
	"github.com/sandevgo/threadbot/internal/core"
	"github.com/sandevgo/threadbot/pkg/log"
	"github.com/sandevgo/threadbot/pkg/retry"
)

const (
	authBaseURL = "https://www.reddit.com"
	apiBaseURL  = "https://oauth.reddit.com"
)

// Client is a script-app Reddit API client: password-grant OAuth with
// token refresh, retried GETs, and the handful of submit endpoints the
// bot needs.
type Client struct {
	httpClient *http.Client
	cfg        *config.RedditConfig
	retrier    *retry.Retrier
	authURL    string
	apiURL     string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(cfg *config.RedditConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		retrier:    retry.NewDefaultRetrier(),
		authURL:    authBaseURL,
		apiURL:     apiBaseURL,
	}
}

type thingData struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
	PostHint   string  `json:"post_hint"`
	URL        string  `json:"url"`
	LinkID     string  `json:"link_id"`
	ParentID   string  `json:"parent_id"`
	Subreddit  string  `json:"subreddit"`
	WasComment bool    `json:"was_comment"`
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string    `json:"kind"`
			Data thingData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (c *Client) FetchNewPosts(ctx context.Context, limit int) ([]core.Post, error) {
	var lst listing
	path := fmt.Sprintf("/r/%s/new", c.cfg.Subreddit)
	if err := c.get(ctx, path, listingParams(limit), &lst); err != nil {
		return nil, fmt.Errorf("failed to fetch new posts: %w", err)
	}

	posts := make([]core.Post, 0, len(lst.Data.Children))
	for _, child := range lst.Data.Children {
		d := child.Data
		posts = append(posts, core.Post{
			ID:         d.ID,
			Title:      d.Title,
			Body:       d.Selftext,
			Author:     d.Author,
			CreatedUTC: int64(d.CreatedUTC),
			URL:        d.URL,
			PostHint:   d.PostHint,
		})
	}
	log.FromCtx(ctx).Debug().Int("count", len(posts)).Str("subreddit", c.cfg.Subreddit).Msg("fetched new posts")
	return posts, nil
}

func (c *Client) FetchNewComments(ctx context.Context, limit int) ([]core.Comment, error) {
	var lst listing
	path := fmt.Sprintf("/r/%s/comments", c.cfg.Subreddit)
	if err := c.get(ctx, path, listingParams(limit), &lst); err != nil {
		return nil, fmt.Errorf("failed to fetch new comments: %w", err)
	}

	comments := make([]core.Comment, 0, len(lst.Data.Children))
	for _, child := range lst.Data.Children {
		d := child.Data
		if d.Body == "" {
			continue
		}
		comments = append(comments, core.Comment{
			ID:         d.ID,
			PostID:     stripKindPrefix(d.LinkID),
			ParentID:   commentParent(d.ParentID),
			Author:     d.Author,
			Body:       d.Body,
			CreatedUTC: int64(d.CreatedUTC),
		})
	}
	log.FromCtx(ctx).Debug().Int("count", len(comments)).Str("subreddit", c.cfg.Subreddit).Msg("fetched new comments")
	return comments, nil
}

func (c *Client) FetchNewMessages(ctx context.Context, limit int) ([]core.DirectMessage, error) {
	var lst listing
	if err := c.get(ctx, "/message/inbox", listingParams(limit), &lst); err != nil {
		return nil, fmt.Errorf("failed to fetch inbox: %w", err)
	}

	var msgs []core.DirectMessage
	for _, child := range lst.Data.Children {
		d := child.Data
		// Only true private messages from other users; comment replies
		// arrive through the subreddit poller instead.
		if child.Kind != "t4" || d.WasComment || d.Author == c.cfg.Username || d.Body == "" {
			continue
		}
		msgs = append(msgs, core.DirectMessage{
			ID:         d.ID,
			Sender:     d.Author,
			Body:       d.Body,
			CreatedUTC: int64(d.CreatedUTC),
		})
	}
	log.FromCtx(ctx).Debug().Int("count", len(msgs)).Msg("fetched new direct messages")
	return msgs, nil
}

func (c *Client) CommentOnPost(ctx context.Context, postID, text string) error {
	return c.submitComment(ctx, "t3_"+postID, text)
}

func (c *Client) ReplyToComment(ctx context.Context, commentID, text string) error {
	return c.submitComment(ctx, "t1_"+commentID, text)
}

func (c *Client) ReplyToMessage(ctx context.Context, messageID, text string) error {
	return c.submitComment(ctx, "t4_"+messageID, text)
}

func (c *Client) FetchUserOverview(ctx context.Context, username string, limit int) ([]core.UserItem, error) {
	var lst listing
	path := fmt.Sprintf("/user/%s/overview", url.PathEscape(username))
	if err := c.get(ctx, path, listingParams(limit), &lst); err != nil {
		return nil, fmt.Errorf("failed to fetch overview for %s: %w", username, err)
	}

	items := make([]core.UserItem, 0, len(lst.Data.Children))
	for _, child := range lst.Data.Children {
		d := child.Data
		item := core.UserItem{Subreddit: d.Subreddit}
		switch child.Kind {
		case "t3":
			item.Kind = "post"
			item.Content = strings.TrimSpace(d.Title + " " + d.Selftext)
		case "t1":
			item.Kind = "comment"
			item.Content = d.Body
		default:
			continue
		}
		if item.Content != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

func (c *Client) submitComment(ctx context.Context, thingID, text string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {thingID},
		"text":     {text},
	}
	if err := c.postForm(ctx, "/api/comment", form); err != nil {
		return fmt.Errorf("failed to submit reply to %s: %w", thingID, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.retrier.Do(ctx, func() error {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}

		u := c.apiURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", core.BotUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
			return fmt.Errorf("reddit api returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("reddit api returned status %d: %s", resp.StatusCode, string(body))
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	return c.retrier.Do(ctx, func() error {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", core.BotUserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
			return fmt.Errorf("reddit api returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("reddit api returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AppID, c.cfg.AppSecret)
	req.Header.Set("User-Agent", core.BotUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", fmt.Errorf("reddit auth failed: %s", tok.Error)
	}

	c.token = tok.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	c.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func listingParams(limit int) url.Values {
	return url.Values{
		"limit": {strconv.Itoa(limit)},
		"show":  {"all"},
	}
}

// stripKindPrefix turns "t3_abc" into "abc".
func stripKindPrefix(fullname string) string {
	if i := strings.IndexByte(fullname, '_'); i >= 0 {
		return fullname[i+1:]
	}
	return fullname
}

// commentParent keeps only comment parents; a "t3_" parent means the
// comment is top-level and its parent is the post itself.
func commentParent(fullname string) string {
	if strings.HasPrefix(fullname, "t1_") {
		return fullname[3:]
	}
	return ""
}
