package twitter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// TimelineType discriminates the kinds of timeline a target can point at.
type TimelineType string

const (
	TimelineList   TimelineType = "list"
	TimelineUser   TimelineType = "user"
	TimelineThread TimelineType = "thread"
)

// Target is a parsed timeline target with a stable cache key.
type Target struct {
	Type       TimelineType
	Key        string // e.g. "list:1409181262510690310" or "user:elonmusk"
	URL        string
	ListID     string
	ScreenName string
	TweetID    string
}

var (
	listPathRe = regexp.MustCompile(`^/i/lists/(\d+)$`)
	userPathRe = regexp.MustCompile(`^/@?([A-Za-z0-9_]{1,15})(?:/(?:with_replies)?)?$`)
)

// Platform paths that look like handles but are not user profiles.
var reservedPaths = map[string]bool{
	"i": true, "home": true, "explore": true, "search": true,
	"notifications": true, "messages": true, "settings": true,
	"compose": true, "intent": true,
}

var allowedHosts = map[string]bool{
	"x.com": true, "twitter.com": true,
	"www.x.com": true, "www.twitter.com": true,
}

// ParseTimelineURL parses an X/Twitter timeline URL into a Target.
//
// Supported forms:
//
//	https://x.com/i/lists/{list_id}
//	https://x.com/{handle}
//	https://x.com/@{handle}
//	https://x.com/{handle}/with_replies
//
// twitter.com and www-prefixed hosts are accepted too. Anything else fails
// with ErrUnsupportedURL.
func ParseTimelineURL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
	}

	// Host allow-list check happens before any path matching.
	if !allowedHosts[u.Host] {
		return Target{}, fmt.Errorf("%w: unsupported host %q", ErrUnsupportedURL, u.Host)
	}

	if m := listPathRe.FindStringSubmatch(u.Path); m != nil {
		listID := m[1]
		return Target{
			Type:   TimelineList,
			Key:    "list:" + listID,
			URL:    raw,
			ListID: listID,
		}, nil
	}

	if m := userPathRe.FindStringSubmatch(u.Path); m != nil {
		handle := m[1]
		if !reservedPaths[strings.ToLower(handle)] {
			return Target{
				Type:       TimelineUser,
				Key:        "user:" + strings.ToLower(handle),
				URL:        raw,
				ScreenName: handle,
			}, nil
		}
	}

	return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
}

// ThreadTarget builds a thread target directly from a tweet id. Thread
// targets are not derived from generic URL patterns; the caller supplies the
// id and the key is the conversation id once resolved.
func ThreadTarget(tweetID string) Target {
	return Target{
		Type:    TimelineThread,
		Key:     "thread:" + tweetID,
		URL:     "https://x.com/i/status/" + tweetID,
		TweetID: tweetID,
	}
}
