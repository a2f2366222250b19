// Package twitter is a small OAuth1 client for the Twitter v1.1 REST API.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.twitter.com/1.1"
	defaultTimeout = 30 * time.Second
)

// ErrRateLimited is returned when the API answers 429.
var ErrRateLimited = errors.New("twitter rate limit exceeded")

// Credentials holds the OAuth1 consumer and access secrets.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Config holds configuration for the client.
type Config struct {
	Credentials Credentials
	BaseURL     string        // default: https://api.twitter.com/1.1
	Timeout     time.Duration // per request, default 30s
	MinInterval time.Duration // minimum spacing between requests, 0 disables
}

// Client signs every request with the configured user credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// User is the subset of a user object the application reads.
type User struct {
	ID         string `json:"id_str"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// Tweet is the subset of a status object the application reads.
type Tweet struct {
	ID       string `json:"id_str"`
	Text     string `json:"text"`
	FullText string `json:"full_text"`
	User     User   `json:"user"`
}

// Body returns the untruncated text when the API provided it.
func (t Tweet) Body() string {
	if t.FullText != "" {
		return t.FullText
	}
	return t.Text
}

// New creates a client. No request is made until a method is called.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	oauthCfg := oauth1.NewConfig(cfg.Credentials.ConsumerKey, cfg.Credentials.ConsumerSecret)
	token := oauth1.NewToken(cfg.Credentials.AccessToken, cfg.Credentials.AccessTokenSecret)
	httpClient := oauthCfg.Client(context.Background(), token)
	httpClient.Timeout = timeout

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    limiter,
	}
}

// VerifyCredentials checks that the credentials authenticate and returns the
// authenticated account.
func (c *Client) VerifyCredentials(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/account/verify_credentials.json", nil, &user); err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	slog.Debug("authenticated with Twitter", "screen_name", user.ScreenName, "id", user.ID)
	return &user, nil
}

// LookupUser resolves a screen name to a user.
func (c *Client) LookupUser(ctx context.Context, screenName string) (*User, error) {
	q := url.Values{}
	q.Set("screen_name", screenName)

	var user User
	if err := c.get(ctx, "/users/show.json", q, &user); err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", screenName, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("lookup user %s: empty id", screenName)
	}
	return &user, nil
}

// UserTimeline returns the most recent tweets of an account, newest first.
func (c *Client) UserTimeline(ctx context.Context, screenName string, count int) ([]Tweet, error) {
	q := url.Values{}
	q.Set("screen_name", screenName)
	q.Set("count", strconv.Itoa(count))
	q.Set("tweet_mode", "extended")

	var tweets []Tweet
	if err := c.get(ctx, "/statuses/user_timeline.json", q, &tweets); err != nil {
		return nil, fmt.Errorf("user timeline %s: %w", screenName, err)
	}
	return tweets, nil
}

// directMessageEvent is the request body for sending a direct message.
type directMessageEvent struct {
	Event struct {
		Type          string `json:"type"`
		MessageCreate struct {
			Target struct {
				RecipientID string `json:"recipient_id"`
			} `json:"target"`
			MessageData struct {
				Text string `json:"text"`
			} `json:"message_data"`
		} `json:"message_create"`
	} `json:"event"`
}

// SendDirectMessage sends text to the user with the given numeric id.
func (c *Client) SendDirectMessage(ctx context.Context, recipientID, text string) error {
	var ev directMessageEvent
	ev.Event.Type = "message_create"
	ev.Event.MessageCreate.Target.RecipientID = recipientID
	ev.Event.MessageCreate.MessageData.Text = text

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if err := c.do(ctx, http.MethodPost, "/direct_messages/events/new.json", nil, body, nil); err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w (reset %s)", ErrRateLimited, resp.Header.Get("x-rate-limit-reset"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
