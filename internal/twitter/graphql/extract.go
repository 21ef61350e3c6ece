// Package graphql extracts canonical tweets from the platform's internal
// GraphQL responses. The payloads are unversioned and their tweet-bearing
// path has changed several times, so extraction walks an untyped tree with an
// ordered list of shape matchers and uses the first that yields entries.
package graphql

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"xdump/internal/twitter"
)

// GraphQL operation names observed per timeline kind. Responses whose URL
// trailing segment is not in the expected set are ignored.
var (
	ListEndpoints   = []string{"ListLatestTweetsTimeline", "ListTimeline"}
	UserEndpoints   = []string{"UserTweets", "UserTweetsAndReplies"}
	ThreadEndpoints = []string{"TweetDetail"}
)

// UserByScreenName is the handle-resolution operation.
const UserByScreenName = "UserByScreenName"

var endpointRe = regexp.MustCompile(`/i/api/graphql/[^/]+/([^?/]+)`)

// EndpointFromURL extracts the operation name from a GraphQL request URL.
func EndpointFromURL(rawURL string) (string, bool) {
	if !strings.Contains(rawURL, "/i/api/graphql/") {
		return "", false
	}
	m := endpointRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MatchesEndpoint reports whether the URL targets one of the given operations.
func MatchesEndpoint(rawURL string, endpoints []string) bool {
	name, ok := EndpointFromURL(rawURL)
	if !ok {
		return false
	}
	for _, ep := range endpoints {
		if name == ep {
			return true
		}
	}
	return false
}

// TimelinePage is one decoded timeline response: the tweets it carried and
// the bottom pagination cursor, when present.
type TimelinePage struct {
	Tweets       []*twitter.Tweet
	BottomCursor string
}

// timelineShape locates the instructions array inside one historical
// response layout. Matchers are tried in order; the first non-nil result wins.
type timelineShape struct {
	name         string
	instructions func(doc map[string]interface{}) []interface{}
}

var timelineShapes = []timelineShape{
	{
		name: "list_timeline",
		instructions: func(doc map[string]interface{}) []interface{} {
			return digSlice(doc, "data", "list", "tweets_timeline", "timeline", "instructions")
		},
	},
	{
		name: "user_timeline_v2",
		instructions: func(doc map[string]interface{}) []interface{} {
			return digSlice(doc, "data", "user", "result", "timeline_v2", "timeline", "instructions")
		},
	},
	{
		name: "user_timeline",
		instructions: func(doc map[string]interface{}) []interface{} {
			tl := digMap(doc, "data", "user", "result", "timeline")
			if tl == nil {
				return nil
			}
			// Newer layouts nest a second timeline object.
			if inner := digMap(tl, "timeline"); inner != nil {
				tl = inner
			}
			return digSlice(tl, "instructions")
		},
	},
}

// ExtractTimeline decodes a timeline response body into a TimelinePage.
// A body that matches no known shape fails with ErrMalformedResponse; a body
// that matches a shape but carries zero tweets returns an empty page, which
// the backends treat as the end-of-timeline signal.
func ExtractTimeline(body []byte) (*TimelinePage, error) {
	var doc map[string]interface{}
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", twitter.ErrMalformedResponse, err)
	}

	var instructions []interface{}
	matched := false
	for _, shape := range timelineShapes {
		if got := shape.instructions(doc); got != nil {
			instructions = got
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: no timeline shape matched", twitter.ErrMalformedResponse)
	}

	page := &TimelinePage{}
	for _, inst := range instructions {
		instMap, ok := inst.(map[string]interface{})
		if !ok {
			continue
		}
		for _, raw := range digSlice(instMap, "entries") {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if cursor, ok := bottomCursor(entry); ok {
				page.BottomCursor = cursor
				continue
			}
			page.Tweets = append(page.Tweets, extractEntry(entry)...)
		}
	}
	return page, nil
}

// ExtractThread decodes a TweetDetail response into the conversation's
// tweets, deduplicated by id, in response order.
func ExtractThread(body []byte) ([]*twitter.Tweet, error) {
	var doc map[string]interface{}
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", twitter.ErrMalformedResponse, err)
	}

	instructions := digSlice(doc, "data", "threaded_conversation_with_injections_v2", "instructions")
	if instructions == nil {
		return nil, fmt.Errorf("%w: no conversation shape matched", twitter.ErrMalformedResponse)
	}

	var tweets []*twitter.Tweet
	seen := make(map[string]bool)
	for _, inst := range instructions {
		instMap, ok := inst.(map[string]interface{})
		if !ok {
			continue
		}
		for _, raw := range digSlice(instMap, "entries") {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			for _, t := range extractEntry(entry) {
				if !seen[t.ID] {
					seen[t.ID] = true
					tweets = append(tweets, t)
				}
			}
		}
	}
	return tweets, nil
}

// ExtractUserID pulls the numeric account id out of a UserByScreenName
// response. Returns ErrUserNotFound when the payload carries no account.
func ExtractUserID(body []byte) (string, error) {
	var doc map[string]interface{}
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", twitter.ErrMalformedResponse, err)
	}
	id := digString(doc, "data", "user", "result", "rest_id")
	if id == "" {
		return "", twitter.ErrUserNotFound
	}
	return id, nil
}

// extractEntry converts one timeline entry into zero or more tweets.
// Entries come in two content shapes: a single-tweet item and a module (a
// self-thread bundled inline) holding multiple items.
func extractEntry(entry map[string]interface{}) []*twitter.Tweet {
	entryID := digString(entry, "entryId")
	if strings.HasPrefix(entryID, "cursor-") {
		return nil
	}

	content := digMap(entry, "content")
	if content == nil {
		return nil
	}

	contentType := digString(content, "entryType")
	if contentType == "" {
		contentType = digString(content, "__typename")
	}

	if contentType == "TimelineTimelineModule" {
		return extractModule(content)
	}

	t := tweetFromItemContent(digMap(content, "itemContent"))
	if t == nil {
		return nil
	}
	return []*twitter.Tweet{t}
}

// extractModule expands a TimelineTimelineModule into its constituent tweets.
// When an author has at least two tweets in the module, that author's first
// tweet is marked as the thread starter. The module usually opens with the
// thread author, but a pinned reply or injected tweet can come first.
func extractModule(content map[string]interface{}) []*twitter.Tweet {
	items := digSlice(content, "items")
	if items == nil {
		return nil
	}

	var tweets []*twitter.Tweet
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		ic := digMap(item, "item", "itemContent")
		if ic == nil {
			ic = digMap(item, "itemContent")
		}
		if t := tweetFromItemContent(ic); t != nil {
			tweets = append(tweets, t)
		}
	}

	if len(tweets) > 1 {
		perAuthor := make(map[string]int, len(tweets))
		for _, t := range tweets {
			perAuthor[t.UserID]++
		}
		for _, t := range tweets {
			if perAuthor[t.UserID] > 1 {
				t.IsThreadStarter = true
				break
			}
		}
	}
	return tweets
}

// tweetFromItemContent unwraps an itemContent object down to a tweet result.
func tweetFromItemContent(ic map[string]interface{}) *twitter.Tweet {
	if ic == nil {
		return nil
	}
	itemType := digString(ic, "itemType")
	if itemType == "" {
		itemType = digString(ic, "__typename")
	}
	if itemType != "TimelineTweet" {
		return nil
	}

	result := digMap(ic, "tweet_results", "result")
	if result == nil {
		return nil
	}

	typename := digString(result, "__typename")
	if typename == "TweetWithVisibilityResults" {
		result = digMap(result, "tweet")
		if result == nil {
			return nil
		}
		typename = digString(result, "__typename")
	}
	if typename == "TweetTombstone" {
		return nil
	}
	return ConvertTweet(result)
}

// ConvertTweet maps a raw GraphQL tweet result onto the canonical model.
// Returns nil when the object lacks the legacy payload every tweet carries.
func ConvertTweet(result map[string]interface{}) *twitter.Tweet {
	legacy := digMap(result, "legacy")
	if legacy == nil {
		return nil
	}

	userResult := digMap(result, "core", "user_results", "result")
	screenName := digString(userResult, "core", "screen_name")
	if screenName == "" {
		screenName = digString(userResult, "legacy", "screen_name")
	}
	userID := digString(userResult, "rest_id")
	if userID == "" {
		userID = digString(legacy, "user_id_str")
	}

	// "Fri Nov 22 20:08:47 +0000 2024"
	createdAt, err := time.Parse(time.RubyDate, digString(legacy, "created_at"))
	if err != nil {
		createdAt = time.Now().UTC()
	}

	_, isRetweet := legacy["retweeted_status_result"]
	isQuote, _ := legacy["is_quote_status"].(bool)
	hasMedia := len(digSlice(legacy, "extended_entities", "media")) > 0

	// A reply to the author's own tweet marks a self-thread continuation.
	inReplyToUserID := digString(legacy, "in_reply_to_user_id_str")
	isSelfThread := inReplyToUserID != "" && inReplyToUserID == userID

	// Long tweets truncate legacy.full_text; the note variant has the rest.
	text := digString(result, "note_tweet", "note_tweet_results", "result", "text")
	if text == "" {
		text = digString(legacy, "full_text")
	}

	id := digString(legacy, "id_str")
	if id == "" {
		id = digString(result, "rest_id")
	}
	if id == "" {
		return nil
	}

	raw, _ := sonic.Marshal(result)

	return &twitter.Tweet{
		ID:             id,
		CreatedAt:      createdAt.UTC(),
		UserID:         userID,
		ScreenName:     screenName,
		Text:           text,
		ConversationID: digString(legacy, "conversation_id_str"),
		InReplyToID:    digString(legacy, "in_reply_to_status_id_str"),
		IsRetweet:      isRetweet,
		IsQuote:        isQuote,
		HasMedia:       hasMedia,
		IsSelfThread:   isSelfThread,
		Raw:            raw,
	}
}

// bottomCursor extracts the pagination cursor from a cursor-bottom entry.
func bottomCursor(entry map[string]interface{}) (string, bool) {
	entryID := digString(entry, "entryId")
	if !strings.HasPrefix(entryID, "cursor-bottom") {
		return "", false
	}
	content := digMap(entry, "content")
	if v := digString(content, "value"); v != "" {
		return v, true
	}
	if v := digString(content, "itemContent", "value"); v != "" {
		return v, true
	}
	return "", true
}

// dig walks nested maps by key, returning nil on any miss.
func dig(v interface{}, keys ...string) interface{} {
	for _, key := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v, ok = m[key]
		if !ok {
			return nil
		}
	}
	return v
}

func digMap(v interface{}, keys ...string) map[string]interface{} {
	m, _ := dig(v, keys...).(map[string]interface{})
	return m
}

func digSlice(v interface{}, keys ...string) []interface{} {
	s, _ := dig(v, keys...).([]interface{})
	return s
}

func digString(v interface{}, keys ...string) string {
	s, _ := dig(v, keys...).(string)
	return s
}
