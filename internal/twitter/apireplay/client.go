package apireplay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"xdump/internal/twitter"
	"xdump/internal/twitter/graphql"
)

// webBearer is the public bearer token the web client ships in its JS bundle.
// It identifies the web app, not a user; the session cookies carry identity.
const webBearer = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

// queryIDs maps GraphQL operation names to the persisted-query hashes the web
// client currently uses. These rotate with web client deploys.
var queryIDs = map[string]string{
	"ListLatestTweetsTimeline": "2TemLyqrMpTeAmysdbnVqw",
	"UserTweets":               "E3opETHurmVJflFsUBVuUQ",
	"UserTweetsAndReplies":     "bt4TKuAz4T7EkkUsfGWl0w",
	"TweetDetail":              "xOhkmRac04YFZmOzU9PJHg",
	"UserByScreenName":         "G3KGOASz96M-Qu0nwmGXNg",
}

// featureFlags is the frozen feature map the GraphQL endpoints require on
// every request. Missing flags produce 400s, unknown extra flags are ignored.
const featureFlags = `{"responsive_web_graphql_exclude_directive_enabled":true,"responsive_web_graphql_timeline_navigation_enabled":true,"responsive_web_graphql_skip_user_profile_image_extensions_enabled":false,"tweetypie_unmention_optimization_enabled":true,"responsive_web_edit_tweet_api_enabled":true,"graphql_is_translatable_rweb_tweet_is_translatable_enabled":true,"view_counts_everywhere_api_enabled":true,"longform_notetweets_consumption_enabled":true,"longform_notetweets_rich_text_read_enabled":true,"longform_notetweets_inline_media_enabled":true,"tweet_awards_web_tipping_enabled":false,"freedom_of_speech_not_reach_fetch_enabled":true,"standardized_nudges_misinfo":true,"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled":true,"responsive_web_enhance_cards_enabled":false}`

const defaultPageSize = 40

// Client issues authenticated GraphQL requests, pacing them through a rate
// limiter and retrying transient failures with exponential backoff.
type Client struct {
	baseURL     string
	pool        *Pool
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	log         *zap.Logger
}

// NewClient builds a client over the given account pool. proxy may be empty.
func NewClient(pool *Pool, proxy string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		baseURL:     "https://x.com/i/api/graphql",
		pool:        pool,
		httpClient:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		limiter:     rate.NewLimiter(rate.Limit(1), 3),
		maxAttempts: 4,
		baseBackoff: time.Second,
		log:         log,
	}, nil
}

// ListTimelinePage fetches one page of a list timeline. cursor is empty for
// the first page.
func (c *Client) ListTimelinePage(ctx context.Context, listID, cursor string) (*graphql.TimelinePage, error) {
	vars := map[string]interface{}{
		"listId": listID,
		"count":  defaultPageSize,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	body, err := c.get(ctx, "ListLatestTweetsTimeline", vars)
	if err != nil {
		return nil, err
	}
	return graphql.ExtractTimeline(body)
}

// UserTimelinePage fetches one page of a user's tweets by numeric id.
func (c *Client) UserTimelinePage(ctx context.Context, userID, cursor string) (*graphql.TimelinePage, error) {
	vars := map[string]interface{}{
		"userId":                 userID,
		"count":                  defaultPageSize,
		"includePromotedContent": false,
		"withVoice":              true,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	body, err := c.get(ctx, "UserTweets", vars)
	if err != nil {
		return nil, err
	}
	return graphql.ExtractTimeline(body)
}

// TweetDetail fetches the full conversation around one tweet.
func (c *Client) TweetDetail(ctx context.Context, tweetID string) ([]*twitter.Tweet, error) {
	vars := map[string]interface{}{
		"focalTweetId":        tweetID,
		"with_rux_injections": false,
		"withCommunity":       true,
	}
	body, err := c.get(ctx, "TweetDetail", vars)
	if err != nil {
		return nil, err
	}
	return graphql.ExtractThread(body)
}

// UserByScreenName resolves a handle to its numeric account id.
func (c *Client) UserByScreenName(ctx context.Context, screenName string) (string, error) {
	body, err := c.get(ctx, "UserByScreenName", map[string]interface{}{
		"screen_name": screenName,
	})
	if err != nil {
		return "", err
	}
	return graphql.ExtractUserID(body)
}

// get performs one authenticated GraphQL GET and returns the response body.
func (c *Client) get(ctx context.Context, op string, vars map[string]interface{}) ([]byte, error) {
	queryID, ok := queryIDs[op]
	if !ok {
		return nil, fmt.Errorf("unknown graphql operation %q", op)
	}

	acct, err := c.pool.next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", twitter.ErrLoginRequired, err)
	}

	varsJSON, err := sonic.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}

	q := url.Values{}
	q.Set("variables", string(varsJSON))
	q.Set("features", featureFlags)
	reqURL := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, queryID, op, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.authorize(req, acct)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if err := c.pool.markInactive(acct.Username, fmt.Sprintf("http %d on %s", resp.StatusCode, op)); err != nil {
			c.log.Warn("failed to deactivate account", zap.String("username", acct.Username), zap.Error(err))
		}
		c.log.Warn("session rejected",
			zap.String("username", acct.Username),
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: account %s rejected with status %d", twitter.ErrLoginRequired, acct.Username, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("graphql %s: status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// authorize attaches the web app bearer plus the account's session cookies.
// The csrf header must mirror the ct0 cookie or the API returns 403.
func (c *Client) authorize(req *http.Request, acct *Account) {
	req.Header.Set("Authorization", "Bearer "+webBearer)
	req.Header.Set("Cookie", fmt.Sprintf("auth_token=%s; ct0=%s", acct.AuthToken, acct.CT0))
	req.Header.Set("x-csrf-token", acct.CT0)
	req.Header.Set("x-twitter-auth-type", "OAuth2Session")
	req.Header.Set("x-twitter-active-user", "yes")
	req.Header.Set("Accept", "application/json")
}

// doWithRetry retries rate-limit and server errors with exponential backoff,
// honoring Retry-After when the server sends one.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				return resp, nil
			}
			wait := backoff
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			c.log.Debug("retrying request",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.Duration("wait", wait))
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			backoff *= 2
			continue
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
